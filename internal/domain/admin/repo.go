package admin

import (
	"context"

	"github.com/mediease/mediease/internal/domain/scheduling"
)

// Repository runs the read-only reporting queries behind the admin views.
// Doctor queries take the doctor profile id, patient queries the user id.
type Repository interface {
	AppointmentCounts(ctx context.Context, doctorID int64) (*AppointmentCounts, error)
	AvailabilityCounts(ctx context.Context, doctorID int64, today scheduling.Date) (*AvailabilityCounts, error)
	RecentForDoctor(ctx context.Context, doctorID int64, limit int) ([]*AppointmentRow, error)
	UpcomingForDoctor(ctx context.Context, doctorID int64, today scheduling.Date, limit int) ([]*AppointmentRow, error)

	PatientStats(ctx context.Context, patientID int64) (*PatientStats, error)
	RecentForPatient(ctx context.Context, patientID int64, limit int) ([]*AppointmentRow, error)

	SystemStats(ctx context.Context, today scheduling.Date) (*SystemStats, error)
}
