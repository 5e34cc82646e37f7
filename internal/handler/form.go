package handler

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/enjoycity/internal/model"
	"github.com/Shivanand-hulikatti/enjoycity/internal/service"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02T15:04"
)

// formError is a malformed input value, shown to the user as is.
type formError struct {
	field string
	msg   string
}

func (e *formError) Error() string { return e.field + ": " + e.msg }

// parseFilter reads the listing query shared by / and /api/events.
func (h *Handler) parseFilter(q url.Values) (model.ListFilter, error) {
	f := model.ListFilter{
		Query: strings.TrimSpace(q.Get("q")),
		Sort:  model.SortMode(q.Get("sort")),
	}
	var err error

	if f.CategoryID, err = optionalInt64(q, "category"); err != nil {
		return f, err
	}
	switch p := model.PriceFilter(q.Get("price")); p {
	case model.PriceAny, model.PriceFree, model.PricePaid:
		f.Price = p
	default:
		return f, &formError{"price", "must be free or paid"}
	}
	switch f.Sort {
	case "", model.SortDate, model.SortDistance, model.SortPreferences:
	default:
		return f, &formError{"sort", "must be date, distance or preferences"}
	}

	if f.From, err = h.optionalDate(q, "from", false); err != nil {
		return f, err
	}
	if f.To, err = h.optionalDate(q, "to", true); err != nil {
		return f, err
	}
	if f.Lat, err = optionalFloat(q.Get("lat"), "lat", 90); err != nil {
		return f, err
	}
	if f.Lng, err = optionalFloat(q.Get("lng"), "lng", 180); err != nil {
		return f, err
	}

	limit, err := optionalInt64(q, "limit")
	if err != nil {
		return f, err
	}
	offset, err := optionalInt64(q, "offset")
	if err != nil {
		return f, err
	}
	f.Limit, f.Offset = int(limit), int(offset)
	return f, nil
}

func optionalInt64(q url.Values, key string) (int64, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, &formError{key, "must be a non-negative whole number"}
	}
	return v, nil
}

func optionalFloat(raw, key string, bound float64) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < -bound || v > bound {
		return nil, &formError{key, fmt.Sprintf("must be a number between -%g and %g", bound, bound)}
	}
	return &v, nil
}

// optionalDate parses YYYY-MM-DD. endOfDay moves the instant to the last
// moment of that day so "to" is inclusive.
func (h *Handler) optionalDate(q url.Values, key string, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, h.loc)
	if err != nil {
		return nil, &formError{key, "must be a date (YYYY-MM-DD)"}
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &t, nil
}

func (h *Handler) parseDateTime(raw, key string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateTimeLayout, raw, h.loc)
	if err != nil {
		return nil, &formError{key, "must be a date and time"}
	}
	return &t, nil
}

// parseCents reads a decimal amount such as "12", "12.5" or "12.50". Only a
// leading minus sign is accepted.
func parseCents(raw string) (int64, error) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	if raw == "" {
		return 0, nil
	}
	neg := strings.HasPrefix(raw, "-")
	whole, frac, _ := strings.Cut(strings.TrimPrefix(raw, "-"), ".")
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (frac != "" && !isDigits(frac)) {
		return 0, &formError{"price", "must be an amount"}
	}
	if len(frac) > 2 {
		return 0, &formError{"price", "must have at most two decimals"}
	}
	for len(frac) < 2 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || w > (math.MaxInt64-99)/100 {
		return 0, &formError{"price", "is too large"}
	}
	f, _ := strconv.ParseInt(frac, 10, 64)
	cents := w*100 + f
	if neg {
		cents = -cents
	}
	return cents, nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

// parseEventForm reads the propose/edit form.
func (h *Handler) parseEventForm(form url.Values) (service.EventInput, error) {
	in := service.EventInput{
		Title:       form.Get("title"),
		Description: form.Get("description"),
		Venue:       form.Get("venue"),
	}
	var err error

	if raw := strings.TrimSpace(form.Get("category_id")); raw != "" {
		if in.CategoryID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return in, &formError{"category_id", "must be chosen from the list"}
		}
	}
	if in.Latitude, err = optionalFloat(form.Get("latitude"), "latitude", 90); err != nil {
		return in, err
	}
	if in.Longitude, err = optionalFloat(form.Get("longitude"), "longitude", 180); err != nil {
		return in, err
	}
	starts, err := h.parseDateTime(form.Get("starts_at"), "starts_at")
	if err != nil {
		return in, err
	}
	if starts == nil {
		return in, &formError{"starts_at", "is required"}
	}
	in.StartsAt = *starts
	if in.EndsAt, err = h.parseDateTime(form.Get("ends_at"), "ends_at"); err != nil {
		return in, err
	}
	if raw := strings.TrimSpace(form.Get("total_seats")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return in, &formError{"total_seats", "must be a whole number"}
		}
		in.TotalSeats = &n
	}
	if in.PriceCents, err = parseCents(form.Get("price")); err != nil {
		return in, err
	}
	return in, nil
}

// parseRanks reads rank_<categoryID> inputs and returns the ranked ids in
// order. Blank ranks are left out; ties keep id order.
func parseRanks(form url.Values) ([]int64, error) {
	type ranked struct {
		id   int64
		rank int
	}
	var list []ranked
	for key, vals := range form {
		rawID, ok := strings.CutPrefix(key, "rank_")
		if !ok || len(vals) == 0 || strings.TrimSpace(vals[0]) == "" {
			continue
		}
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			return nil, &formError{key, "unknown category"}
		}
		rank, err := strconv.Atoi(strings.TrimSpace(vals[0]))
		if err != nil || rank < 1 {
			return nil, &formError{key, "rank must be a positive number"}
		}
		list = append(list, ranked{id: id, rank: rank})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].rank != list[j].rank {
			return list[i].rank < list[j].rank
		}
		return list[i].id < list[j].id
	})
	ids := make([]int64, len(list))
	for i, r := range list {
		ids[i] = r.id
	}
	return ids, nil
}

func asFormError(err error) (*formError, bool) {
	var fe *formError
	ok := errors.As(err, &fe)
	return fe, ok
}
