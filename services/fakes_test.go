package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"home-services-server/events"
	"home-services-server/models"
	"home-services-server/repository"
)

// memDB backs every fake repository so relations resolve the way preloads would.
type memDB struct {
	mu       sync.Mutex
	nextID   uint
	users    map[uint]models.User
	services map[uint]models.Service
	bookings map[uint]models.Booking
	invoices map[uint]models.Invoice
	messages []models.Message
	reviews  map[uint]models.Review
	profiles map[uint]models.ProviderProfile
	apps     map[uint]models.ProviderApplication

	// staleBookings forces the next booking Save to report a concurrent write.
	staleBookings bool
}

func newMemDB() *memDB {
	return &memDB{
		users:    map[uint]models.User{},
		services: map[uint]models.Service{},
		bookings: map[uint]models.Booking{},
		invoices: map[uint]models.Invoice{},
		reviews:  map[uint]models.Review{},
		profiles: map[uint]models.ProviderProfile{},
		apps:     map[uint]models.ProviderApplication{},
	}
}

func (db *memDB) id() uint {
	db.nextID++
	return db.nextID
}

func (db *memDB) store() *repository.Store {
	return &repository.Store{
		Users:     fakeUsers{db},
		Services:  fakeServices{db},
		Bookings:  fakeBookings{db},
		Invoices:  fakeInvoices{db},
		Messages:  fakeMessages{db},
		Reviews:   fakeReviews{db},
		Providers: fakeProviders{db},
	}
}

func (db *memDB) addUser(name string, role models.UserRole) *models.User {
	db.mu.Lock()
	defer db.mu.Unlock()
	u := models.User{
		ID:             db.id(),
		Name:           name,
		Email:          strings.ToLower(name) + "@example.com",
		Role:           role,
		ProviderStatus: models.ProviderStatusNone,
		IsActive:       true,
	}
	db.users[u.ID] = u
	return &u
}

func (db *memDB) addService(name string, price float64) *models.Service {
	db.mu.Lock()
	defer db.mu.Unlock()
	s := models.Service{ID: db.id(), Name: name, Price: price, Active: true}
	db.services[s.ID] = s
	return &s
}

func (db *memDB) addBooking(b models.Booking) *models.Booking {
	db.mu.Lock()
	defer db.mu.Unlock()
	b.ID = db.id()
	if b.Version == 0 {
		b.Version = 1
	}
	if b.Status == "" {
		b.Status = models.BookingStatusPending
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	db.bookings[b.ID] = b
	return &b
}

func (db *memDB) booking(id uint) models.Booking {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.bookings[id]
}

func (db *memDB) withRelations(b models.Booking) models.Booking {
	if u, ok := db.users[b.UserID]; ok {
		b.User = &u
	}
	if s, ok := db.services[b.ServiceID]; ok {
		b.Service = &s
	}
	if b.ProviderID != nil {
		if p, ok := db.users[*b.ProviderID]; ok {
			b.Provider = &p
		}
	}
	return b
}

type fakeUsers struct{ db *memDB }

func (f fakeUsers) Create(_ context.Context, user *models.User) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, u := range f.db.users {
		if u.Email == user.Email {
			return gorm.ErrDuplicatedKey
		}
	}
	user.ID = f.db.id()
	f.db.users[user.ID] = *user
	return nil
}

func (f fakeUsers) FindByID(_ context.Context, id uint) (*models.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	u, ok := f.db.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (f fakeUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, u := range f.db.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f fakeUsers) Save(_ context.Context, user *models.User) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.users[user.ID] = *user
	return nil
}

type fakeServices struct{ db *memDB }

func (f fakeServices) Create(_ context.Context, service *models.Service) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	service.ID = f.db.id()
	f.db.services[service.ID] = *service
	return nil
}

func (f fakeServices) FindByID(_ context.Context, id uint) (*models.Service, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	s, ok := f.db.services[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &s, nil
}

func (f fakeServices) List(_ context.Context, filter repository.ServiceFilter) ([]models.Service, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.Service
	for _, s := range f.db.services {
		if !s.Active && !filter.IncludeInactive {
			continue
		}
		if filter.Category != "" && s.Category != filter.Category {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f fakeServices) Save(_ context.Context, service *models.Service) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.services[service.ID] = *service
	return nil
}

type fakeBookings struct{ db *memDB }

func (f fakeBookings) Create(_ context.Context, booking *models.Booking) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	booking.ID = f.db.id()
	booking.CreatedAt = time.Now()
	booking.UpdatedAt = booking.CreatedAt
	stored := *booking
	stored.User, stored.Service, stored.Provider = nil, nil, nil
	f.db.bookings[booking.ID] = stored
	return nil
}

func (f fakeBookings) FindByID(_ context.Context, id uint) (*models.Booking, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	b, ok := f.db.bookings[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	b = f.db.withRelations(b)
	return &b, nil
}

func (f fakeBookings) ListByUser(_ context.Context, userID uint) ([]models.Booking, error) {
	return f.Find(context.Background(), repository.BookingFilter{UserID: &userID}, 0, 1<<30)
}

func (f fakeBookings) matching(filter repository.BookingFilter) []models.Booking {
	var out []models.Booking
	for _, b := range f.db.bookings {
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, b.Status) {
			continue
		}
		if filter.UserID != nil && b.UserID != *filter.UserID {
			continue
		}
		if filter.ProviderID != nil && !b.AssignedTo(*filter.ProviderID) {
			continue
		}
		if filter.ServiceID != nil && b.ServiceID != *filter.ServiceID {
			continue
		}
		if filter.Query != "" && !strings.Contains(strings.ToLower(b.Address), strings.ToLower(filter.Query)) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func containsStatus(list []models.BookingStatus, s models.BookingStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func (f fakeBookings) Count(_ context.Context, filter repository.BookingFilter) (int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return int64(len(f.matching(filter))), nil
}

func (f fakeBookings) Find(_ context.Context, filter repository.BookingFilter, offset, limit int) ([]models.Booking, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	all := f.matching(filter)
	if offset >= len(all) {
		return []models.Booking{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	out := make([]models.Booking, 0, end-offset)
	for _, b := range all[offset:end] {
		out = append(out, f.db.withRelations(b))
	}
	return out, nil
}

func (f fakeBookings) Save(_ context.Context, booking *models.Booking) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	stored, ok := f.db.bookings[booking.ID]
	if !ok || stored.Version != booking.Version || f.db.staleBookings {
		f.db.staleBookings = false
		return repository.ErrStaleWrite
	}
	stored.ProviderID = booking.ProviderID
	stored.ScheduledAt = booking.ScheduledAt
	stored.Status = booking.Status
	stored.Payment = booking.Payment
	stored.Version++
	stored.UpdatedAt = time.Now()
	f.db.bookings[booking.ID] = stored
	booking.Version = stored.Version
	booking.UpdatedAt = stored.UpdatedAt
	return nil
}

func (f fakeBookings) FindCompleted(_ context.Context, userID, serviceID uint) (*models.Booking, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, b := range f.db.bookings {
		if b.UserID == userID && b.ServiceID == serviceID && b.Status == models.BookingStatusCompleted {
			return &b, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

type fakeInvoices struct{ db *memDB }

func (f fakeInvoices) Create(_ context.Context, invoice *models.Invoice) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, inv := range f.db.invoices {
		if inv.BookingID == invoice.BookingID {
			return gorm.ErrDuplicatedKey
		}
	}
	invoice.ID = f.db.id()
	f.db.invoices[invoice.ID] = *invoice
	return nil
}

func (f fakeInvoices) FindByID(_ context.Context, id uint) (*models.Invoice, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	inv, ok := f.db.invoices[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &inv, nil
}

func (f fakeInvoices) FindByIDForUpdate(ctx context.Context, id uint) (*models.Invoice, error) {
	return f.FindByID(ctx, id)
}

func (f fakeInvoices) FindByBookingID(_ context.Context, bookingID uint) (*models.Invoice, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, inv := range f.db.invoices {
		if inv.BookingID == bookingID {
			return &inv, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f fakeInvoices) List(_ context.Context, filter repository.InvoiceFilter, offset, limit int) ([]models.Invoice, int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.Invoice
	for _, inv := range f.db.invoices {
		if filter.Status != nil && inv.Status != *filter.Status {
			continue
		}
		if filter.UserID != nil && inv.UserID != *filter.UserID {
			continue
		}
		if filter.ProviderID != nil && (inv.ProviderID == nil || *inv.ProviderID != *filter.ProviderID) {
			continue
		}
		out = append(out, inv)
	}
	total := int64(len(out))
	if offset >= len(out) {
		return []models.Invoice{}, total, nil
	}
	if end := offset + limit; end < len(out) {
		out = out[:end]
	}
	return out[offset:], total, nil
}

func (f fakeInvoices) Save(_ context.Context, invoice *models.Invoice) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.invoices[invoice.ID] = *invoice
	return nil
}

func (f fakeInvoices) MarkPaid(_ context.Context, invoice *models.Invoice) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	stored, ok := f.db.invoices[invoice.ID]
	if !ok || stored.Status != models.InvoiceStatusUnpaid {
		return repository.ErrInvoiceSettled
	}
	stored.Status = models.InvoiceStatusPaid
	stored.PaidAt = invoice.PaidAt
	stored.PaymentTrxID = invoice.PaymentTrxID
	f.db.invoices[invoice.ID] = stored
	return nil
}

// interleavedInvoices runs afterRead once, right after the first FindByID returns, and afterLock
// once after the first FindByIDForUpdate, to model a payment committing in between.
type interleavedInvoices struct {
	repository.InvoiceRepository
	afterRead func()
	afterLock func()

	readOnce sync.Once
	lockOnce sync.Once
}

func (r *interleavedInvoices) FindByID(ctx context.Context, id uint) (*models.Invoice, error) {
	inv, err := r.InvoiceRepository.FindByID(ctx, id)
	if r.afterRead != nil {
		r.readOnce.Do(r.afterRead)
	}
	return inv, err
}

func (r *interleavedInvoices) FindByIDForUpdate(ctx context.Context, id uint) (*models.Invoice, error) {
	inv, err := r.InvoiceRepository.FindByIDForUpdate(ctx, id)
	if r.afterLock != nil {
		r.lockOnce.Do(r.afterLock)
	}
	return inv, err
}

type fakeMessages struct{ db *memDB }

func (f fakeMessages) Create(_ context.Context, message *models.Message) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	message.ID = f.db.id()
	message.CreatedAt = time.Now()
	f.db.messages = append(f.db.messages, *message)
	return nil
}

func (f fakeMessages) ListByBooking(_ context.Context, bookingID uint) ([]models.Message, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.Message
	for _, m := range f.db.messages {
		if m.BookingID == bookingID {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeReviews struct{ db *memDB }

func (f fakeReviews) Upsert(_ context.Context, review *models.Review) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for id, r := range f.db.reviews {
		if r.UserID == review.UserID && r.ServiceID == review.ServiceID {
			r.Rating, r.Comment, r.Status, r.BookingID = review.Rating, review.Comment, review.Status, review.BookingID
			f.db.reviews[id] = r
			return nil
		}
	}
	review.ID = f.db.id()
	f.db.reviews[review.ID] = *review
	return nil
}

func (f fakeReviews) FindByID(_ context.Context, id uint) (*models.Review, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	r, ok := f.db.reviews[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &r, nil
}

func (f fakeReviews) FindByUserAndService(_ context.Context, userID, serviceID uint) (*models.Review, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, r := range f.db.reviews {
		if r.UserID == userID && r.ServiceID == serviceID {
			return &r, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f fakeReviews) List(_ context.Context, filter repository.ReviewFilter, offset, limit int) ([]models.Review, int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.Review
	for _, r := range f.db.reviews {
		if filter.ServiceID != nil && r.ServiceID != *filter.ServiceID {
			continue
		}
		if filter.UserID != nil && r.UserID != *filter.UserID {
			continue
		}
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := int64(len(out))
	if offset >= len(out) {
		return []models.Review{}, total, nil
	}
	if end := offset + limit; end < len(out) {
		out = out[:end]
	}
	return out[offset:], total, nil
}

func (f fakeReviews) Save(_ context.Context, review *models.Review) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.reviews[review.ID] = *review
	return nil
}

func (f fakeReviews) Delete(_ context.Context, id uint) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	delete(f.db.reviews, id)
	return nil
}

func (f fakeReviews) stats(match func(models.Review) bool) models.RatingStats {
	var sum, n int64
	for _, r := range f.db.reviews {
		if r.Status == models.ReviewStatusApproved && match(r) {
			sum += int64(r.Rating)
			n++
		}
	}
	if n == 0 {
		return models.RatingStats{}
	}
	return models.RatingStats{Avg: float64(sum) / float64(n), Count: n}
}

func (f fakeReviews) providerOf(r models.Review) (uint, bool) {
	if r.BookingID == nil {
		return 0, false
	}
	b, ok := f.db.bookings[*r.BookingID]
	if !ok || b.ProviderID == nil {
		return 0, false
	}
	return *b.ProviderID, true
}

func (f fakeReviews) ServiceStats(_ context.Context, serviceID uint) (models.RatingStats, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.stats(func(r models.Review) bool { return r.ServiceID == serviceID }), nil
}

func (f fakeReviews) ProviderStats(_ context.Context, providerID uint) (models.RatingStats, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.stats(func(r models.Review) bool {
		p, ok := f.providerOf(r)
		return ok && p == providerID
	}), nil
}

func (f fakeReviews) AllProviderStats(_ context.Context) (map[uint]models.RatingStats, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	out := map[uint]models.RatingStats{}
	for _, r := range f.db.reviews {
		if p, ok := f.providerOf(r); ok {
			if _, done := out[p]; !done {
				out[p] = f.stats(func(r models.Review) bool {
					q, ok := f.providerOf(r)
					return ok && q == p
				})
			}
		}
	}
	return out, nil
}

type fakeProviders struct{ db *memDB }

func (f fakeProviders) FindProfile(_ context.Context, userID uint) (*models.ProviderProfile, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p, ok := f.db.profiles[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &p, nil
}

func (f fakeProviders) SaveProfile(_ context.Context, profile *models.ProviderProfile) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if profile.ID == 0 {
		profile.ID = f.db.id()
	}
	f.db.profiles[profile.UserID] = *profile
	return nil
}

func (f fakeProviders) ListProfiles(_ context.Context, filter repository.ProviderFilter, offset, limit int) ([]models.ProviderProfile, int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.ProviderProfile
	for _, p := range f.db.profiles {
		if filter.Verified != nil && p.IsVerified != *filter.Verified {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (f fakeProviders) ProfileUserIDs(_ context.Context) ([]uint, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var ids []uint
	for id := range f.db.profiles {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f fakeProviders) UpdateRating(_ context.Context, userID uint, stats models.RatingStats) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	p, ok := f.db.profiles[userID]
	if !ok {
		return nil
	}
	p.RatingAvg = stats.Avg
	p.RatingCount = stats.Count
	f.db.profiles[userID] = p
	return nil
}

func (f fakeProviders) CreateApplication(_ context.Context, app *models.ProviderApplication) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	app.ID = f.db.id()
	f.db.apps[app.ID] = *app
	return nil
}

func (f fakeProviders) FindApplication(_ context.Context, id uint) (*models.ProviderApplication, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	a, ok := f.db.apps[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &a, nil
}

func (f fakeProviders) SaveApplication(_ context.Context, app *models.ProviderApplication) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	f.db.apps[app.ID] = *app
	return nil
}

func (f fakeProviders) ListApplications(_ context.Context, status *models.ApplicationStatus, offset, limit int) ([]models.ProviderApplication, int64, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var out []models.ProviderApplication
	for _, a := range f.db.apps {
		if status == nil || a.Status == *status {
			out = append(out, a)
		}
	}
	return out, int64(len(out)), nil
}

func (f fakeProviders) HasPendingApplication(_ context.Context, userID uint) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, a := range f.db.apps {
		if a.UserID == userID && a.Status == models.ApplicationStatusPending {
			return true, nil
		}
	}
	return false, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	bookings []events.BookingEvent
	messages []events.MessageEvent
}

func (r *recordingNotifier) NotifyBooking(_ context.Context, ev events.BookingEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookings = append(r.bookings, ev)
}

func (r *recordingNotifier) NotifyMessage(_ context.Context, ev events.MessageEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, ev)
}

func (r *recordingNotifier) bookingTypes() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, 0, len(r.bookings))
	for _, ev := range r.bookings {
		out = append(out, ev.Type)
	}
	return out
}

// fixture wires every service to one in-memory database.
type fixture struct {
	db       *memDB
	notifier *recordingNotifier

	bookings  *BookingService
	invoices  *InvoiceService
	messages  *MessageService
	reviews   *ReviewService
	catalog   *CatalogService
	providers *ProviderService

	customer Actor
	provider Actor
	admin    Actor
	service  *models.Service
}

func newFixture() *fixture {
	db := newMemDB()
	store := db.store()
	n := &recordingNotifier{}
	log := zap.NewNop()

	f := &fixture{
		db:        db,
		notifier:  n,
		bookings:  NewBookingService(store, n, log),
		invoices:  NewInvoiceService(store, n, log, BillingDefaults{Currency: "USD", TaxPct: 10}),
		messages:  NewMessageService(store, n, log),
		reviews:   NewReviewService(store, log),
		catalog:   NewCatalogService(store, nil, log),
		providers: NewProviderService(store, log),
	}
	f.customer = ActorFromUser(db.addUser("Carol", models.RoleUser))
	f.provider = ActorFromUser(db.addUser("Pete", models.RoleProvider))
	f.admin = ActorFromUser(db.addUser("Ada", models.RoleAdmin))
	f.service = db.addService("Deep clean", 80)
	return f
}

// pendingBooking stores a fresh booking owned by the fixture customer.
func (f *fixture) pendingBooking() *models.Booking {
	return f.db.addBooking(models.Booking{
		UserID:      f.customer.ID,
		ServiceID:   f.service.ID,
		ScheduledAt: time.Now().Add(7 * 24 * time.Hour),
		Address:     "1 Main St",
		Payment:     models.Payment{Method: models.PaymentMethodCash, Status: models.PaymentStatusUnpaid},
	})
}

// bookingIn stores a booking already assigned to the fixture provider in the given status.
func (f *fixture) bookingIn(status models.BookingStatus) *models.Booking {
	pid := f.provider.ID
	return f.db.addBooking(models.Booking{
		UserID:      f.customer.ID,
		ServiceID:   f.service.ID,
		ProviderID:  &pid,
		ScheduledAt: time.Now().Add(24 * time.Hour),
		Address:     "1 Main St",
		Status:      status,
		Payment:     models.Payment{Method: models.PaymentMethodCash, Status: models.PaymentStatusUnpaid},
	})
}
