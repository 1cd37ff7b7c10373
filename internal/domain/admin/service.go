package admin

import (
	"context"
	"math"
	"time"

	"github.com/mediease/mediease/internal/domain/activity"
	"github.com/mediease/mediease/internal/domain/appointment"
	"github.com/mediease/mediease/internal/domain/identity"
	"github.com/mediease/mediease/internal/domain/scheduling"
	"github.com/mediease/mediease/internal/platform/apperror"
	"github.com/mediease/mediease/internal/platform/auth"
)

// Accounts loads users and doctor profiles.
type Accounts interface {
	GetDoctor(ctx context.Context, id int64) (*identity.Doctor, error)
	Account(ctx context.Context, userID int64) (*identity.User, *identity.Doctor, error)
}

// Schedules lays out a doctor's slots over a date range.
type Schedules interface {
	DoctorSchedule(ctx context.Context, who *auth.Principal, doctorID int64, start, end string) (*scheduling.Schedule, error)
}

type Service struct {
	repo      Repository
	accounts  Accounts
	schedules Schedules
	logs      activity.Repository
	loc       *time.Location
	now       func() time.Time
}

func NewService(repo Repository, accounts Accounts, schedules Schedules, logs activity.Repository, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:      repo,
		accounts:  accounts,
		schedules: schedules,
		logs:      logs,
		loc:       loc,
		now:       time.Now,
	}
}

func (s *Service) today() scheduling.Date {
	return scheduling.DateOf(s.now(), s.loc)
}

func requireAdmin(who *auth.Principal) error {
	if !who.Is(auth.RoleAdmin) {
		return apperror.Forbidden("Admin access required")
	}
	return nil
}

// percent is n/total as a percentage rounded to one decimal.
func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}

func status(s string) string {
	if s == "" {
		return "active"
	}
	return s
}

// -- Doctor details --

// DoctorDetails reports on one doctor: appointment and slot counts, rates,
// the latest and next appointments and the coming week.
func (s *Service) DoctorDetails(ctx context.Context, who *auth.Principal, doctorID int64) (*DoctorReport, error) {
	if err := requireAdmin(who); err != nil {
		return nil, err
	}
	if doctorID <= 0 {
		return nil, ErrInvalidDoctorID
	}

	d, err := s.accounts.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	u, _, err := s.accounts.Account(ctx, d.UserID)
	if err != nil {
		return nil, err
	}

	today := s.today()
	counts, err := s.repo.AppointmentCounts(ctx, doctorID)
	if err != nil {
		return nil, apperror.Wrap(err, "Database error while fetching doctor details")
	}
	avail, err := s.repo.AvailabilityCounts(ctx, doctorID, today)
	if err != nil {
		return nil, apperror.Wrap(err, "Database error while fetching doctor details")
	}
	recent, err := s.repo.RecentForDoctor(ctx, doctorID, RecentDoctorAppointments)
	if err != nil {
		return nil, apperror.Wrap(err, "Database error while fetching doctor details")
	}
	upcoming, err := s.repo.UpcomingForDoctor(ctx, doctorID, today, UpcomingDoctorAppointments)
	if err != nil {
		return nil, apperror.Wrap(err, "Database error while fetching doctor details")
	}
	week, err := s.schedules.DoctorSchedule(ctx, who, doctorID,
		today.String(), today.AddDays(scheduling.DefaultScheduleDays-1).String())
	if err != nil {
		return nil, err
	}

	return &DoctorReport{
		DoctorID:       d.ID,
		UserID:         d.UserID,
		Name:           d.Name,
		Email:          d.Email,
		Phone:          d.Phone,
		Address:        u.Address,
		Specialization: d.Specialization,
		Qualifications: d.Qualifications,
		Experience:     d.Experience,
		Status:         status(u.Status),
		CreatedAt:      u.CreatedAt,
		MemberSince:    u.CreatedAt.In(s.loc).Format("January 2, 2006"),
		Statistics: DoctorStatistics{
			Appointments: *counts,
			Availability: *avail,
			Performance: Performance{
				CompletionRate:  percent(counts.Completed, counts.Total),
				NoShowRate:      percent(counts.NoShow, counts.Total),
				UtilizationRate: percent(avail.BookedSlots, avail.TotalSlots),
			},
		},
		RecentAppointments:   doctorAppointments(recent),
		UpcomingAppointments: doctorAppointments(upcoming),
		WeeklySchedule:       weekDays(week),
	}, nil
}

func doctorAppointments(rows []*AppointmentRow) []*DoctorAppointment {
	out := make([]*DoctorAppointment, 0, len(rows))
	for _, r := range rows {
		out = append(out, &DoctorAppointment{
			AppointmentID: r.ID,
			PatientName:   r.PatientName,
			PatientEmail:  r.PatientEmail,
			PatientPhone:  r.PatientPhone,
			Date:          r.SlotDate,
			DateFormatted: r.SlotDate.Long(),
			Time:          r.timeRange(),
			Status:        r.Status,
			Symptoms:      r.Symptoms,
			Notes:         r.Notes,
			CreatedAt:     r.CreatedAt,
		})
	}
	return out
}

// weekDays folds a schedule into per-day counters. Days without slots are
// left out.
func weekDays(sched *scheduling.Schedule) []*WeekDay {
	out := make([]*WeekDay, 0, len(sched.Days))
	for _, day := range sched.Days {
		wd := &WeekDay{
			Date:          day.Date,
			DateFormatted: day.DateFormatted,
			DayName:       day.DayName,
			TotalSlots:    len(day.Slots),
		}
		for _, slot := range day.Slots {
			switch slot.Status {
			case scheduling.StateBooked:
				wd.BookedSlots++
			case scheduling.StateAvailable:
				wd.AvailableSlots++
			}
		}
		wd.Utilization = percent(wd.BookedSlots, wd.TotalSlots)
		out = append(out, wd)
	}
	return out
}

// -- User details --

// UserDetails reports on one user with role-specific statistics and their
// five latest appointments.
func (s *Service) UserDetails(ctx context.Context, who *auth.Principal, userID int64) (*UserReport, error) {
	if err := requireAdmin(who); err != nil {
		return nil, err
	}
	if userID <= 0 {
		return nil, ErrInvalidUserID
	}

	u, d, err := s.accounts.Account(ctx, userID)
	if err != nil {
		return nil, err
	}
	rep := &UserReport{
		UserID:             u.ID,
		Name:               u.Name,
		Email:              u.Email,
		Role:               string(u.Role),
		Phone:              u.Phone,
		Address:            u.Address,
		CreatedAt:          u.CreatedAt,
		Status:             status(u.Status),
		RecentAppointments: []*RecentAppointment{},
	}

	var rows []*AppointmentRow
	switch {
	case u.Role == auth.RoleDoctor && d != nil:
		counts, err := s.repo.AppointmentCounts(ctx, d.ID)
		if err != nil {
			return nil, apperror.Wrap(err, "Database error while fetching user details")
		}
		avail, err := s.repo.AvailabilityCounts(ctx, d.ID, s.today())
		if err != nil {
			return nil, apperror.Wrap(err, "Database error while fetching user details")
		}
		rep.AppointmentCount = counts.Total
		rep.DoctorInfo = &DoctorInfo{
			DoctorID:       d.ID,
			Specialization: d.Specialization,
			Qualifications: d.Qualifications,
			Experience:     d.Experience,
			Stats: DoctorUserStats{
				TotalAppointments:     counts.Total,
				CompletedAppointments: counts.Completed,
				AvailableSlots:        avail.BookableSlots,
				CompletionRate:        percent(counts.Completed, counts.Total),
			},
		}
		if rows, err = s.repo.RecentForDoctor(ctx, d.ID, RecentUserAppointments); err != nil {
			return nil, apperror.Wrap(err, "Database error while fetching user details")
		}
	case u.Role == auth.RolePatient:
		st, err := s.repo.PatientStats(ctx, u.ID)
		if err != nil {
			return nil, apperror.Wrap(err, "Database error while fetching user details")
		}
		rep.AppointmentCount = st.TotalAppointments
		rep.PatientInfo = &PatientInfo{Stats: *st}
		if rows, err = s.repo.RecentForPatient(ctx, u.ID, RecentUserAppointments); err != nil {
			return nil, apperror.Wrap(err, "Database error while fetching user details")
		}
	}

	for _, r := range rows {
		ra := &RecentAppointment{
			AppointmentID: r.ID,
			Status:        r.Status,
			Date:          r.SlotDate,
			DateFormatted: r.SlotDate.Long(),
			Time:          r.timeRange(),
			CreatedAt:     r.CreatedAt,
		}
		if u.Role == auth.RolePatient {
			spec := r.Specialization
			ra.OtherParty, ra.Specialization = r.DoctorName, &spec
		} else {
			phone := r.PatientPhone
			ra.OtherParty, ra.Phone = r.PatientName, &phone
		}
		rep.RecentAppointments = append(rep.RecentAppointments, ra)
	}
	return rep, nil
}

// -- System --

// SystemStats counts users and appointments. Every role and status is
// present in the maps, with zero when there are none.
func (s *Service) SystemStats(ctx context.Context, who *auth.Principal) (*SystemStats, error) {
	if err := requireAdmin(who); err != nil {
		return nil, err
	}
	st, err := s.repo.SystemStats(ctx, s.today())
	if err != nil {
		return nil, apperror.Wrap(err, "Database error")
	}
	st.UsersByRole = withKeys(st.UsersByRole,
		string(auth.RolePatient), string(auth.RoleDoctor), string(auth.RoleAdmin))
	st.AppointmentsByStatus = withKeys(st.AppointmentsByStatus,
		string(appointment.StatusPending), string(appointment.StatusConfirmed), string(appointment.StatusCompleted),
		string(appointment.StatusCancelled), string(appointment.StatusNoShow))
	return st, nil
}

func withKeys(m map[string]int, keys ...string) map[string]int {
	if m == nil {
		m = make(map[string]int, len(keys))
	}
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			m[k] = 0
		}
	}
	return m
}

func (s *Service) ActivityLog(ctx context.Context, who *auth.Principal, f activity.Filter, limit, offset int) ([]*activity.Entry, int, error) {
	if err := requireAdmin(who); err != nil {
		return nil, 0, err
	}
	items, total, err := s.logs.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, apperror.Wrap(err, "Database error")
	}
	return items, total, nil
}
