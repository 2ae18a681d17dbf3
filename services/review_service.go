package services

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"home-services-server/models"
	"home-services-server/repository"
	"home-services-server/utils"
)

const maxCommentLength = 2000

type ReviewService struct {
	store *repository.Store
	log   *zap.Logger
}

func NewReviewService(store *repository.Store, log *zap.Logger) *ReviewService {
	return &ReviewService{store: store, log: log}
}

type UpsertReviewInput struct {
	ServiceID string
	Rating    int
	Comment   string
}

type UpdateReviewInput struct {
	Rating  *int
	Comment *string
}

func validateReview(rating int, comment string) error {
	if rating < 1 || rating > 5 {
		return Validation("rating must be between 1 and 5")
	}
	if utf8.RuneCountInString(comment) > maxCommentLength {
		return Validation("comment must be at most %d characters", maxCommentLength)
	}
	return nil
}

// Upsert creates or overwrites the caller's review of a service. The caller needs a completed booking
// of that service, and every write sends the review back to moderation.
func (s *ReviewService) Upsert(ctx context.Context, actor Actor, in UpsertReviewInput) (*models.Review, error) {
	serviceID, err := utils.ParseID(in.ServiceID)
	if err != nil {
		return nil, Validation("invalid service id")
	}
	comment := strings.TrimSpace(in.Comment)
	if err := validateReview(in.Rating, comment); err != nil {
		return nil, err
	}
	if _, err := s.store.Services.FindByID(ctx, serviceID); err != nil {
		return nil, lookupErr(err, "service not found")
	}

	booking, err := s.store.Bookings.FindCompleted(ctx, actor.ID, serviceID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, Validation("you can only review a service after a completed booking")
		}
		return nil, err
	}

	review := &models.Review{
		UserID:    actor.ID,
		ServiceID: serviceID,
		BookingID: &booking.ID,
		Rating:    in.Rating,
		Comment:   comment,
		Status:    models.ReviewStatusPending,
	}
	if err := s.store.Reviews.Upsert(ctx, review); err != nil {
		return nil, err
	}
	stored, err := s.store.Reviews.FindByUserAndService(ctx, actor.ID, serviceID)
	if err != nil {
		return nil, err
	}

	s.refreshProviderRating(ctx, stored)
	return stored, nil
}

func (s *ReviewService) UpdateMine(ctx context.Context, actor Actor, id uint, in UpdateReviewInput) (*models.Review, error) {
	review, err := s.store.Reviews.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "review not found")
	}
	if review.UserID != actor.ID {
		return nil, Forbidden("you can only edit your own reviews")
	}

	if in.Rating != nil {
		review.Rating = *in.Rating
	}
	if in.Comment != nil {
		review.Comment = strings.TrimSpace(*in.Comment)
	}
	if err := validateReview(review.Rating, review.Comment); err != nil {
		return nil, err
	}
	review.Status = models.ReviewStatusPending

	if err := s.store.Reviews.Save(ctx, review); err != nil {
		return nil, err
	}
	s.refreshProviderRating(ctx, review)
	return review, nil
}

func (s *ReviewService) Delete(ctx context.Context, actor Actor, id uint) error {
	review, err := s.store.Reviews.FindByID(ctx, id)
	if err != nil {
		return lookupErr(err, "review not found")
	}
	if review.UserID != actor.ID && !actor.IsAdmin() {
		return Forbidden("you can only delete your own reviews")
	}
	if err := s.store.Reviews.Delete(ctx, id); err != nil {
		return err
	}
	s.refreshProviderRating(ctx, review)
	return nil
}

// List is the public listing: approved reviews only, unless an admin asks for everything.
func (s *ReviewService) List(ctx context.Context, actor *Actor, q url.Values) (Page[models.Review], error) {
	filter := repository.ReviewFilter{}
	var err error
	if filter.ServiceID, err = optionalID(q.Get("service"), "service"); err != nil {
		return Page[models.Review]{}, err
	}
	includeAll, _ := strconv.ParseBool(q.Get("includeAll"))
	if !(includeAll && actor != nil && actor.IsAdmin()) {
		approved := models.ReviewStatusApproved
		filter.Status = &approved
	}
	return s.list(ctx, filter, ParsePageRequest(q))
}

func (s *ReviewService) Mine(ctx context.Context, actor Actor, q url.Values) (Page[models.Review], error) {
	filter := repository.ReviewFilter{UserID: &actor.ID}
	var err error
	if filter.ServiceID, err = optionalID(q.Get("service"), "service"); err != nil {
		return Page[models.Review]{}, err
	}
	return s.list(ctx, filter, ParsePageRequest(q))
}

// ModerationQueue lists reviews by status, pending by default; status=all lists everything.
func (s *ReviewService) ModerationQueue(ctx context.Context, q url.Values) (Page[models.Review], error) {
	filter := repository.ReviewFilter{}
	switch raw := strings.TrimSpace(q.Get("status")); raw {
	case "all":
	case "":
		pending := models.ReviewStatusPending
		filter.Status = &pending
	default:
		st, ok := models.ParseReviewStatus(raw)
		if !ok {
			return Page[models.Review]{}, Validation("invalid review status %q", raw)
		}
		filter.Status = &st
	}
	return s.list(ctx, filter, ParsePageRequest(q))
}

func (s *ReviewService) Moderate(ctx context.Context, actor Actor, id uint, rawStatus string) (*models.Review, error) {
	if !actor.IsAdmin() {
		return nil, Forbidden("only an admin can moderate reviews")
	}
	status, ok := models.ParseReviewStatus(rawStatus)
	if !ok || status == models.ReviewStatusPending {
		return nil, Validation("status must be approved or rejected")
	}

	review, err := s.store.Reviews.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr(err, "review not found")
	}
	review.Status = status
	if err := s.store.Reviews.Save(ctx, review); err != nil {
		return nil, err
	}

	s.log.Info("review moderated",
		zap.Uint("review_id", review.ID),
		zap.String("status", string(status)),
		zap.Uint("admin_id", actor.ID))
	s.refreshProviderRating(ctx, review)
	return review, nil
}

// Stats returns the approved rating average (2 decimals) and count for a service.
func (s *ReviewService) Stats(ctx context.Context, serviceID uint) (models.RatingStats, error) {
	stats, err := s.store.Reviews.ServiceStats(ctx, serviceID)
	if err != nil {
		return models.RatingStats{}, err
	}
	stats.Avg = utils.Round2(stats.Avg)
	return stats, nil
}

func (s *ReviewService) list(ctx context.Context, filter repository.ReviewFilter, page PageRequest) (Page[models.Review], error) {
	items, total, err := s.store.Reviews.List(ctx, filter, page.Offset(), page.Limit)
	if err != nil {
		return Page[models.Review]{}, err
	}
	return NewPage(items, total, page), nil
}

// RecomputeProvider rebuilds a provider's aggregates from the approved reviews of their bookings.
func (s *ReviewService) RecomputeProvider(ctx context.Context, providerID uint) error {
	stats, err := s.store.Reviews.ProviderStats(ctx, providerID)
	if err != nil {
		return err
	}
	return s.store.Providers.UpdateRating(ctx, providerID, stats)
}

// RecomputeAll refreshes every provider profile. Profiles without approved reviews drop to zero.
func (s *ReviewService) RecomputeAll(ctx context.Context) (int, error) {
	ids, err := s.store.Providers.ProfileUserIDs(ctx)
	if err != nil {
		return 0, err
	}
	stats, err := s.store.Reviews.AllProviderStats(ctx)
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := s.store.Providers.UpdateRating(ctx, id, stats[id]); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// refreshProviderRating is best effort; the scheduled recompute repairs any drift.
func (s *ReviewService) refreshProviderRating(ctx context.Context, review *models.Review) {
	if review.BookingID == nil {
		return
	}
	booking, err := s.store.Bookings.FindByID(ctx, *review.BookingID)
	if err != nil || booking.ProviderID == nil {
		return
	}
	if err := s.RecomputeProvider(ctx, *booking.ProviderID); err != nil {
		s.log.Warn("provider rating refresh failed",
			zap.Uint("provider_id", *booking.ProviderID),
			zap.Error(err))
	}
}
