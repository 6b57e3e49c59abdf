package handler

import (
	"healthconsent/internal/gateway/service"
	"healthconsent/internal/registry"
)

type AccessRequest struct {
	Action string `json:"action" validate:"required,oneof=view edit share"`
}

type AccessResponse struct {
	Patient  *registry.PatientRecord `json:"patient"`
	Action   string                  `json:"action"`
	RecordID string                  `json:"access_record_id"`
	Message  string                  `json:"message"`
}

func toAccessResponse(res *service.AccessResult) AccessResponse {
	return AccessResponse{
		Patient:  res.Record,
		Action:   res.Decision.Action.String(),
		RecordID: res.Decision.RecordID.String(),
		Message:  res.Decision.Message,
	}
}
