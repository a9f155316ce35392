package feed

func SlotsTopic(therapistID string) string {
	return "slots:" + therapistID
}

func TherapistAppointmentsTopic(therapistID string) string {
	return "appointments:therapist:" + therapistID
}

func PatientAppointmentsTopic(patientID string) string {
	return "appointments:patient:" + patientID
}

func TherapistConsultationsTopic(therapistID string) string {
	return "consultations:therapist:" + therapistID
}

func PatientConsultationsTopic(patientID string) string {
	return "consultations:patient:" + patientID
}
