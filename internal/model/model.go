package model

import (
	"fmt"
	"strconv"
	"time"
)

// PublicUserID is the canonical form of the 10-12 digit identifier users type
// into the login form. Profiles and sensor readings both store this numeric
// form; string input from forms goes through ParsePublicUserID exactly once.
type PublicUserID int64

func ParsePublicUserID(raw string) (PublicUserID, error) {
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	return PublicUserID(value), nil
}

func (id PublicUserID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

type Account struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Profile struct {
	AccountID    string
	PublicUserID PublicUserID
	Name         string
	Phone        string
	CreatedAt    time.Time
}

// SensorReading is one ingestion event. Fields are pointers because the
// ingestion path is external and records can arrive incomplete; Complete
// is the read-side validity check.
type SensorReading struct {
	OwnerID      PublicUserID `json:"ownerId"`
	Timestamp    *time.Time   `json:"timestamp"`
	Temperature  *float64     `json:"temperature"`
	Humidity     *float64     `json:"humidity"`
	SoilMoisture *float64     `json:"soilMoisture"`
}

func (r SensorReading) Complete() bool {
	return r.Timestamp != nil && r.Temperature != nil && r.Humidity != nil && r.SoilMoisture != nil
}

type SetupRequest struct {
	ID            string
	AccountID     string
	Address       string
	PreferredDate string
	Notes         string
	Status        string
	CreatedAt     time.Time
}

const SetupRequestPending = "pending"

type RefreshSession struct {
	ID        string
	AccountID string
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// TimeRange selects a historical window for the chart.
type TimeRange string

const (
	RangeDay   TimeRange = "day"
	RangeWeek  TimeRange = "week"
	RangeMonth TimeRange = "month"
	RangeAll   TimeRange = "all"
)

func ParseTimeRange(raw string) (TimeRange, error) {
	switch TimeRange(raw) {
	case RangeDay, RangeWeek, RangeMonth, RangeAll:
		return TimeRange(raw), nil
	default:
		return "", fmt.Errorf("invalid range %q", raw)
	}
}

// Window returns the lower time bound for the range, or ok=false for RangeAll.
func (r TimeRange) Window(now time.Time) (time.Time, bool) {
	switch r {
	case RangeWeek:
		return now.Add(-7 * 24 * time.Hour), true
	case RangeMonth:
		return now.Add(-30 * 24 * time.Hour), true
	case RangeAll:
		return time.Time{}, false
	default:
		return now.Add(-24 * time.Hour), true
	}
}

// SeriesData is the chart feed: four parallel sequences in result order.
type SeriesData struct {
	Timestamps    []time.Time `json:"timestamps"`
	Temperatures  []float64   `json:"temperatures"`
	Humidities    []float64   `json:"humidities"`
	SoilMoistures []float64   `json:"soilMoistures"`
}

type ConnectionStatus string

const (
	StatusIdle         ConnectionStatus = "idle"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusError        ConnectionStatus = "error"
)

// ConnectionState is the process-wide status indicator. Not persisted.
type ConnectionState struct {
	Status  ConnectionStatus `json:"status"`
	Message string           `json:"message"`
}
