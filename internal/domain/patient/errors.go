package patient

import "errors"

var (
	ErrPatientNotFound         = errors.New("patient not found")
	ErrConsultationNotFound    = errors.New("consultation not found")
	ErrDuplicateConsultationID = errors.New("consultation id already present on patient")
	ErrVersionConflict         = errors.New("patient was modified concurrently")
)
