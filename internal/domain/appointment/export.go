package appointment

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/mediease/mediease/internal/platform/apperror"
	"github.com/mediease/mediease/internal/platform/auth"
)

const exportPageSize = 500

var csvHeader = []string{
	"Appointment ID", "Status", "Booked At", "Slot Date", "Start Time", "End Time",
	"Patient ID", "Patient Name", "Patient Email", "Patient Phone", "Notes",
}

// ExportFilename names the CSV download for today's date.
func (s *Service) ExportFilename() string {
	return "appointments_" + s.today().String() + ".csv"
}

// ExportCSV writes every appointment in the doctor's list matching f to w.
// Rows are fetched page by page so the export never holds the full list.
func (s *Service) ExportCSV(ctx context.Context, who *auth.Principal, f ListFilter, w io.Writer) error {
	if !who.Is(auth.RoleDoctor) {
		return apperror.Forbidden("Only doctors can export appointments")
	}
	f, err := s.NormalizeFilter(f)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	today := s.today()
	for offset := 0; ; offset += exportPageSize {
		items, total, err := s.repo.ListForDoctor(ctx, who.UserID, f, today, exportPageSize, offset)
		if err != nil {
			return apperror.Wrap(err, "Database error")
		}
		for _, l := range items {
			if err := cw.Write(csvRecord(l, s)); err != nil {
				return err
			}
		}
		if len(items) < exportPageSize || offset+len(items) >= total {
			break
		}
	}
	cw.Flush()
	return cw.Error()
}

func csvRecord(l *Listing, s *Service) []string {
	return []string{
		strconv.FormatInt(l.ID, 10),
		string(l.Status),
		l.CreatedAt.In(s.loc).Format("2006-01-02 15:04:05"),
		l.SlotDate.String(),
		l.StartTime.String(),
		l.EndTime.String(),
		strconv.FormatInt(l.PatientID, 10),
		l.PatientName,
		l.PatientEmail,
		l.PatientPhone,
		l.Notes,
	}
}
