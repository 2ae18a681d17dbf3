package services

import (
	"net/url"
	"strings"
	"time"

	"home-services-server/models"
	"home-services-server/repository"
	"home-services-server/utils"
)

var bookingSortFields = map[string]repository.BookingSortField{
	"createdAt":   repository.SortByCreatedAt,
	"scheduledAt": repository.SortByScheduledAt,
	"status":      repository.SortByStatus,
}

var bookingDateFields = map[string]repository.BookingDateField{
	"createdAt":   repository.DateFieldCreatedAt,
	"scheduledAt": repository.DateFieldScheduledAt,
}

type bookingQueryDefaults struct {
	sortBy    repository.BookingSortField
	sortDesc  bool
	dateField repository.BookingDateField
	// idFilters enables the user/provider/service query parameters.
	idFilters bool
}

var (
	adminBookingDefaults = bookingQueryDefaults{
		sortBy:    repository.SortByCreatedAt,
		sortDesc:  true,
		dateField: repository.DateFieldCreatedAt,
		idFilters: true,
	}
	providerBookingDefaults = bookingQueryDefaults{
		sortBy:    repository.SortByScheduledAt,
		sortDesc:  false,
		dateField: repository.DateFieldScheduledAt,
	}
)

// ParseAdminBookingQuery reads the admin list/export query string.
func ParseAdminBookingQuery(q url.Values) (repository.BookingFilter, PageRequest, error) {
	return parseBookingQuery(q, adminBookingDefaults)
}

// ParseProviderBookingQuery reads the provider list query string. The caller scopes it to the provider.
func ParseProviderBookingQuery(q url.Values) (repository.BookingFilter, PageRequest, error) {
	return parseBookingQuery(q, providerBookingDefaults)
}

func parseBookingQuery(q url.Values, d bookingQueryDefaults) (repository.BookingFilter, PageRequest, error) {
	filter := repository.BookingFilter{
		Statuses:  parseStatusList(q.Get("status")),
		DateField: d.dateField,
		SortBy:    d.sortBy,
		SortDesc:  d.sortDesc,
	}

	if d.idFilters {
		var err error
		if filter.UserID, err = optionalID(q.Get("user"), "user"); err != nil {
			return filter, PageRequest{}, err
		}
		if filter.ProviderID, err = optionalID(q.Get("provider"), "provider"); err != nil {
			return filter, PageRequest{}, err
		}
		if filter.ServiceID, err = optionalID(q.Get("service"), "service"); err != nil {
			return filter, PageRequest{}, err
		}
		filter.Query = strings.TrimSpace(q.Get("q"))
	}

	if field, ok := bookingDateFields[q.Get("dateField")]; ok {
		filter.DateField = field
	}

	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		from, err := parseFilterDate(raw, false)
		if err != nil {
			return filter, PageRequest{}, Validation("from must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
		}
		filter.From = &from
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		to, err := parseFilterDate(raw, true)
		if err != nil {
			return filter, PageRequest{}, Validation("to must be a date (YYYY-MM-DD) or RFC 3339 timestamp")
		}
		filter.To = &to
	}

	if field, ok := bookingSortFields[q.Get("sortBy")]; ok {
		filter.SortBy = field
	}
	switch strings.ToLower(q.Get("order")) {
	case "asc":
		filter.SortDesc = false
	case "desc":
		filter.SortDesc = true
	}

	return filter, ParsePageRequest(q), nil
}

// parseStatusList keeps the recognized entries of a comma-separated list and drops the rest.
func parseStatusList(raw string) []models.BookingStatus {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	seen := make(map[models.BookingStatus]bool)
	var out []models.BookingStatus
	for _, part := range strings.Split(raw, ",") {
		st, ok := models.ParseBookingStatus(strings.TrimSpace(part))
		if !ok || seen[st] {
			continue
		}
		seen[st] = true
		out = append(out, st)
	}
	return out
}

func optionalID(raw, name string) (*uint, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	id, err := utils.ParseID(raw)
	if err != nil {
		return nil, Validation("invalid %s id", name)
	}
	return &id, nil
}

const dateOnly = "2006-01-02"

// parseFilterDate accepts RFC 3339 or a bare date. A bare date used as an upper bound covers the whole day.
func parseFilterDate(raw string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateOnly, raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

var scheduleLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	dateOnly,
}

// parseSchedule parses a booking date. Layouts without a zone are read as UTC.
func parseSchedule(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	var lastErr error
	for _, layout := range scheduleLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
