package main

import (
	"bufio"
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/marketplace-bff/internal/domain/bundle"
)

type sliceSource struct {
	entries []bundle.Entry
	err     error
	since   time.Time
}

func (s *sliceSource) Each(_ context.Context, since time.Time, fn func(bundle.Entry) error) error {
	s.since = since
	for _, e := range s.entries {
		if err := fn(e); err != nil {
			return err
		}
	}
	return s.err
}

func testEntry(id string) bundle.Entry {
	return bundle.Entry{
		ID:             id,
		BundleID:       bundle.NewID([]string{"ord_2", "ord_1"}),
		TrackingNumber: "1Z999",
		LabelURL:       "https://labels.example.com/1Z999.pdf",
		Carrier:        "UPS",
		Service:        "Ground",
		Cost:           decimal.RequireFromString("12.3"),
		OrderIDs:       []string{"ord_1", "ord_2"},
		Outcome:        bundle.OutcomePartiallySucceeded,
		FailedOrders:   []string{"ord_2"},
		Weight:         "16 oz",
		Dimensions:     "10x6x5",
		CreatedAt:      time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestExport(t *testing.T) {
	src := &sliceSource{entries: []bundle.Entry{testEntry("lbl_1"), testEntry("lbl_2")}}
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	n, err := export(context.Background(), zap.NewNop(), src, &buf, since)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, since, src.since)

	gz, err := pgzip.NewReader(&buf)
	require.NoError(t, err)
	defer func() { _ = gz.Close() }()

	var ids []string
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		d := jx.DecodeBytes(scanner.Bytes())
		require.NoError(t, d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			switch string(key) {
			case "id":
				v, err := d.Str()
				ids = append(ids, v)
				return err
			case "cost":
				v, err := d.Str()
				assert.Equal(t, "12.30", v)
				return err
			case "bundleId":
				v, err := d.Str()
				assert.Equal(t, "bundle_ord_1_ord_2", v)
				return err
			default:
				return d.Skip()
			}
		}))
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{"lbl_1", "lbl_2"}, ids)
}

func TestExport_SourceError(t *testing.T) {
	src := &sliceSource{entries: []bundle.Entry{testEntry("lbl_1")}, err: errors.New("connection reset")}

	var buf bytes.Buffer
	_, err := export(context.Background(), zap.NewNop(), src, &buf, time.Time{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestEncodeLine(t *testing.T) {
	line := encodeLine(testEntry("lbl_1"))
	require.True(t, bytes.HasSuffix(line, []byte("\n")))
	assert.Contains(t, string(line), `"failedOrders":["ord_2"]`)
	assert.Contains(t, string(line), `"createdAt":"2026-01-02T03:04:05Z"`)
	assert.Contains(t, string(line), `"labelUrl":"https://labels.example.com/1Z999.pdf"`)
	assert.Contains(t, string(line), `"weight":"16 oz"`)
	assert.Contains(t, string(line), `"dimensions":"10x6x5"`)
}

type closeRecorder struct {
	bytes.Buffer
	closed bool
	err    error
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return c.err
}

func TestExportAndClose(t *testing.T) {
	t.Run("closes output", func(t *testing.T) {
		w := &closeRecorder{}
		n, err := exportAndClose(context.Background(), zap.NewNop(), &sliceSource{entries: []bundle.Entry{testEntry("lbl_1")}}, w, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.True(t, w.closed)
		assert.NotZero(t, w.Len())
	})

	t.Run("close error is returned", func(t *testing.T) {
		w := &closeRecorder{err: errors.New("no space left on device")}
		_, err := exportAndClose(context.Background(), zap.NewNop(), &sliceSource{entries: []bundle.Entry{testEntry("lbl_1")}}, w, time.Time{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "close output")
		assert.Contains(t, err.Error(), "no space left on device")
	})

	t.Run("export error wins", func(t *testing.T) {
		w := &closeRecorder{err: errors.New("no space left on device")}
		_, err := exportAndClose(context.Background(), zap.NewNop(), &sliceSource{err: errors.New("connection reset")}, w, time.Time{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")
		assert.True(t, w.closed)
	})
}
