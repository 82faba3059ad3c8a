package redislive

import (
	"testing"
	"time"

	"github.com/np-nandanpatil/adi/internal/model"
)

func TestReadingPayloadRoundTrip(t *testing.T) {
	ts := time.Date(2026, 8, 27, 10, 30, 0, 0, time.UTC)
	temp := 23.4
	hum := 61.0
	soil := 48.5
	in := model.SensorReading{
		OwnerID:      4242424242,
		Timestamp:    &ts,
		Temperature:  &temp,
		Humidity:     &hum,
		SoilMoisture: &soil,
	}

	data, err := marshalReading(in)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	out, err := unmarshalReading(data)
	if err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if out.OwnerID != in.OwnerID || !out.Timestamp.Equal(ts) || *out.Temperature != temp {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if !out.Complete() {
		t.Fatalf("expected complete reading")
	}
}

func TestReadingPayloadPreservesMissingFields(t *testing.T) {
	ts := time.Date(2026, 8, 27, 10, 30, 0, 0, time.UTC)
	temp := 23.4
	in := model.SensorReading{OwnerID: 4242424242, Timestamp: &ts, Temperature: &temp}

	data, err := marshalReading(in)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	out, err := unmarshalReading(data)
	if err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if out.Humidity != nil || out.SoilMoisture != nil {
		t.Fatalf("expected missing fields to stay nil, got %+v", out)
	}
	if out.Complete() {
		t.Fatalf("partial reading must not report complete")
	}
}

func TestUnmarshalReadingRejectsGarbage(t *testing.T) {
	if _, err := unmarshalReading([]byte("not json")); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestChannelNamePerOwner(t *testing.T) {
	if got := channelFor(1234567890); got != "readings:1234567890" {
		t.Fatalf("unexpected channel name %q", got)
	}
}
