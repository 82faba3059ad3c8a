// Package history builds and executes the bounded-range and all-time
// queries feeding the dashboard chart.
package history

import (
	"context"
	"log"
	"time"

	"github.com/np-nandanpatil/adi/internal/backend"
	"github.com/np-nandanpatil/adi/internal/model"
	"github.com/np-nandanpatil/adi/internal/supervisor"
)

type Fetcher struct {
	store backend.DocumentStore
	sup   *supervisor.Supervisor
	now   func() time.Time
}

func NewFetcher(store backend.DocumentStore, sup *supervisor.Supervisor) *Fetcher {
	return &Fetcher{store: store, sup: sup, now: time.Now}
}

// FetchRange queries readings for ownerID over the given range. Bounded
// ranges filter on timestamp >= now-window ascending; the all-time range
// omits the lower bound and reads descending, consumed in full. Incomplete
// records are skipped and logged, never aborting the batch.
func (f *Fetcher) FetchRange(ctx context.Context, ownerID model.PublicUserID, r model.TimeRange) (model.SeriesData, error) {
	lower, bounded := r.Window(f.now().UTC())
	order := backend.SortAsc
	if !bounded {
		lower = time.Time{}
		order = backend.SortDesc
	}

	var readings []model.SensorReading
	err := f.sup.ExecuteWithRetry(ctx, "historical query", func(ctx context.Context) error {
		var qerr error
		readings, qerr = f.store.QueryReadings(ctx, ownerID, lower, order)
		return qerr
	})
	if err != nil {
		return model.SeriesData{}, err
	}

	series := model.SeriesData{
		Timestamps:    []time.Time{},
		Temperatures:  []float64{},
		Humidities:    []float64{},
		SoilMoistures: []float64{},
	}
	for _, reading := range readings {
		if !reading.Complete() {
			log.Printf("skipping incomplete reading for owner %s", ownerID)
			continue
		}
		series.Timestamps = append(series.Timestamps, *reading.Timestamp)
		series.Temperatures = append(series.Temperatures, *reading.Temperature)
		series.Humidities = append(series.Humidities, *reading.Humidity)
		series.SoilMoistures = append(series.SoilMoistures, *reading.SoilMoisture)
	}
	return series, nil
}
