package services

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"home-services-server/models"
	"home-services-server/repository"
)

type ProviderService struct {
	store *repository.Store
	log   *zap.Logger
	now   func() time.Time
}

func NewProviderService(store *repository.Store, log *zap.Logger) *ProviderService {
	return &ProviderService{store: store, log: log, now: time.Now}
}

type ProfileInput struct {
	DisplayName  *string
	Phone        *string
	Bio          *string
	Skills       []string
	Categories   []string
	ServiceAreas []string
	HourlyRate   *float64
	MinFee       *float64
}

type ApplicationInput struct {
	Phone      string
	City       string
	Skills     []string
	Experience string
	Bio        string
}

// List is the public directory. Only verified providers show unless an admin passes verified=all or false.
func (s *ProviderService) List(ctx context.Context, actor *Actor, q url.Values) (Page[models.ProviderProfile], error) {
	verified := true
	filter := repository.ProviderFilter{
		Verified: &verified,
		Query:    q.Get("q"),
		Category: q.Get("category"),
		Area:     q.Get("area"),
		Skill:    q.Get("skill"),
	}
	if actor != nil && actor.IsAdmin() {
		switch q.Get("verified") {
		case "all":
			filter.Verified = nil
		case "false":
			unverified := false
			filter.Verified = &unverified
		}
	}

	page := ParsePageRequest(q)
	items, total, err := s.store.Providers.ListProfiles(ctx, filter, page.Offset(), page.Limit)
	if err != nil {
		return Page[models.ProviderProfile]{}, err
	}
	return NewPage(items, total, page), nil
}

func (s *ProviderService) Get(ctx context.Context, userID uint) (*models.ProviderProfile, error) {
	profile, err := s.store.Providers.FindProfile(ctx, userID)
	if err != nil {
		return nil, lookupErr(err, "provider not found")
	}
	return profile, nil
}

// MyProfile returns the caller's profile, creating an empty one on first access.
func (s *ProviderService) MyProfile(ctx context.Context, actor Actor) (*models.ProviderProfile, error) {
	if !actor.IsProvider() {
		return nil, Forbidden("only providers have a provider profile")
	}
	return s.ensureProfile(ctx, s.store, actor.ID, nil)
}

func (s *ProviderService) UpdateMyProfile(ctx context.Context, actor Actor, in ProfileInput) (*models.ProviderProfile, error) {
	profile, err := s.MyProfile(ctx, actor)
	if err != nil {
		return nil, err
	}

	if in.DisplayName != nil {
		profile.DisplayName = strings.TrimSpace(*in.DisplayName)
	}
	if in.Phone != nil {
		profile.Phone = strings.TrimSpace(*in.Phone)
	}
	if in.Bio != nil {
		profile.Bio = strings.TrimSpace(*in.Bio)
	}
	if in.Skills != nil {
		profile.Skills = cleanList(in.Skills)
	}
	if in.Categories != nil {
		profile.Categories = cleanList(in.Categories)
	}
	if in.ServiceAreas != nil {
		profile.ServiceAreas = cleanList(in.ServiceAreas)
	}
	if in.HourlyRate != nil {
		if *in.HourlyRate < 0 {
			return nil, Validation("hourlyRate must be zero or more")
		}
		profile.HourlyRate = *in.HourlyRate
	}
	if in.MinFee != nil {
		if *in.MinFee < 0 {
			return nil, Validation("minFee must be zero or more")
		}
		profile.MinFee = *in.MinFee
	}

	if err := s.store.Providers.SaveProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

func (s *ProviderService) SetVerified(ctx context.Context, actor Actor, userID uint, verified bool) (*models.ProviderProfile, error) {
	if !actor.IsAdmin() {
		return nil, Forbidden("only an admin can verify providers")
	}

	var profile *models.ProviderProfile
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		user, err := tx.Users.FindByID(ctx, userID)
		if err != nil {
			return lookupErr(err, "provider not found")
		}
		if !user.IsProvider() {
			return Validation("user %d is not a provider", userID)
		}
		if profile, err = s.ensureProfile(ctx, tx, user.ID, user); err != nil {
			return err
		}

		profile.IsVerified = verified
		profile.VerifiedAt = nil
		if verified {
			at := s.now()
			profile.VerifiedAt = &at
			if user.ProviderStatus != models.ProviderStatusApproved {
				user.ProviderStatus = models.ProviderStatusApproved
				if err := tx.Users.Save(ctx, user); err != nil {
					return err
				}
			}
		}
		return tx.Providers.SaveProfile(ctx, profile)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("provider verification changed",
		zap.Uint("provider_id", userID),
		zap.Bool("verified", verified),
		zap.Uint("admin_id", actor.ID))
	return profile, nil
}

// Apply files a request to become a provider.
func (s *ProviderService) Apply(ctx context.Context, actor Actor, in ApplicationInput) (*models.ProviderApplication, error) {
	if actor.IsProvider() {
		return nil, Conflict("you are already a provider")
	}
	pending, err := s.store.Providers.HasPendingApplication(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, Conflict("you already have a pending application")
	}

	app := &models.ProviderApplication{
		UserID:     actor.ID,
		Phone:      strings.TrimSpace(in.Phone),
		City:       strings.TrimSpace(in.City),
		Skills:     cleanList(in.Skills),
		Experience: strings.TrimSpace(in.Experience),
		Bio:        strings.TrimSpace(in.Bio),
		Status:     models.ApplicationStatusPending,
	}
	err = s.store.Transaction(ctx, func(tx *repository.Store) error {
		user, err := tx.Users.FindByID(ctx, actor.ID)
		if err != nil {
			return lookupErr(err, "user not found")
		}
		if err := tx.Providers.CreateApplication(ctx, app); err != nil {
			return err
		}
		user.ProviderStatus = models.ProviderStatusPending
		return tx.Users.Save(ctx, user)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("provider application submitted", zap.Uint("application_id", app.ID), zap.Uint("user_id", actor.ID))
	return app, nil
}

func (s *ProviderService) ListApplications(ctx context.Context, q url.Values) (Page[models.ProviderApplication], error) {
	var status *models.ApplicationStatus
	if raw := strings.TrimSpace(q.Get("status")); raw != "" && raw != "all" {
		st, ok := models.ParseApplicationStatus(raw)
		if !ok {
			return Page[models.ProviderApplication]{}, Validation("invalid application status %q", raw)
		}
		status = &st
	}

	page := ParsePageRequest(q)
	items, total, err := s.store.Providers.ListApplications(ctx, status, page.Offset(), page.Limit)
	if err != nil {
		return Page[models.ProviderApplication]{}, err
	}
	return NewPage(items, total, page), nil
}

// Approve promotes the applicant to provider and seeds their profile from the application.
func (s *ProviderService) Approve(ctx context.Context, actor Actor, id uint) (*models.ProviderApplication, error) {
	return s.review(ctx, actor, id, models.ApplicationStatusApproved, "")
}

func (s *ProviderService) Reject(ctx context.Context, actor Actor, id uint, reason string) (*models.ProviderApplication, error) {
	return s.review(ctx, actor, id, models.ApplicationStatusRejected, strings.TrimSpace(reason))
}

func (s *ProviderService) review(ctx context.Context, actor Actor, id uint, decision models.ApplicationStatus, reason string) (*models.ProviderApplication, error) {
	if !actor.IsAdmin() {
		return nil, Forbidden("only an admin can review applications")
	}

	var app *models.ProviderApplication
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		app, err = tx.Providers.FindApplication(ctx, id)
		if err != nil {
			return lookupErr(err, "application not found")
		}
		if app.Status != models.ApplicationStatusPending {
			return Conflict("application was already " + string(app.Status))
		}
		user, err := tx.Users.FindByID(ctx, app.UserID)
		if err != nil {
			return lookupErr(err, "applicant not found")
		}

		at := s.now()
		reviewer := actor.ID
		app.Status = decision
		app.ReviewedBy = &reviewer
		app.ReviewedAt = &at
		app.RejectionReason = reason
		if err := tx.Providers.SaveApplication(ctx, app); err != nil {
			return err
		}

		if decision == models.ApplicationStatusRejected {
			user.ProviderStatus = models.ProviderStatusRejected
			return tx.Users.Save(ctx, user)
		}

		user.Role = models.RoleProvider
		user.ProviderStatus = models.ProviderStatusApproved
		if err := tx.Users.Save(ctx, user); err != nil {
			return err
		}
		profile, err := s.ensureProfile(ctx, tx, user.ID, user)
		if err != nil {
			return err
		}
		if profile.Phone == "" {
			profile.Phone = app.Phone
		}
		if profile.Bio == "" {
			profile.Bio = app.Bio
		}
		if len(profile.Skills) == 0 {
			profile.Skills = app.Skills
		}
		if len(profile.ServiceAreas) == 0 && app.City != "" {
			profile.ServiceAreas = pq.StringArray{app.City}
		}
		return tx.Providers.SaveProfile(ctx, profile)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("provider application reviewed",
		zap.Uint("application_id", app.ID),
		zap.String("decision", string(decision)),
		zap.Uint("admin_id", actor.ID))
	return app, nil
}

func (s *ProviderService) ensureProfile(ctx context.Context, store *repository.Store, userID uint, user *models.User) (*models.ProviderProfile, error) {
	profile, err := store.Providers.FindProfile(ctx, userID)
	if err == nil {
		return profile, nil
	}
	if !repository.IsNotFound(err) {
		return nil, err
	}

	if user == nil {
		if user, err = store.Users.FindByID(ctx, userID); err != nil {
			return nil, lookupErr(err, "user not found")
		}
	}
	profile = &models.ProviderProfile{
		UserID:       user.ID,
		DisplayName:  user.Name,
		Skills:       pq.StringArray{},
		Categories:   pq.StringArray{},
		ServiceAreas: pq.StringArray{},
	}
	if err := store.Providers.SaveProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// cleanList trims entries and drops blanks and duplicates.
func cleanList(in []string) pq.StringArray {
	out := pq.StringArray{}
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
