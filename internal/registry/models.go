package registry

// PatientRecord is the demographic record held by the central patient registry.
type PatientRecord struct {
	PatientID        string           `json:"patient_id"`
	NationalID       string           `json:"national_id"`
	FirstName        string           `json:"first_name"`
	LastName         string           `json:"last_name"`
	DateOfBirth      string           `json:"date_of_birth"`
	Gender           string           `json:"gender"`
	Phone            string           `json:"phone"`
	Email            string           `json:"email"`
	Address          Address          `json:"address"`
	EmergencyContact EmergencyContact `json:"emergency_contact"`
}

type Address struct {
	County    string `json:"county"`
	SubCounty string `json:"sub_county"`
	Ward      string `json:"ward"`
}

type EmergencyContact struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
	Phone        string `json:"phone"`
}
