package storage

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"marketsim/models"
)

const timestampLayout = "2006-01-02 15:04:05"

// IndexParquetRecord is the parquet row layout for index bars.
type IndexParquetRecord struct {
	Timestamp int64   `parquet:"name=timestamp, type=INT64"`
	Open      float64 `parquet:"name=open, type=DOUBLE"`
	High      float64 `parquet:"name=high, type=DOUBLE"`
	Low       float64 `parquet:"name=low, type=DOUBLE"`
	Close     float64 `parquet:"name=close, type=DOUBLE"`
	Regime    int32   `parquet:"name=regime, type=INT32"`
	Sigma     float64 `parquet:"name=sigma, type=DOUBLE"`
	CloseEMA  float64 `parquet:"name=close_ema, type=DOUBLE"`
}

// OptionParquetRecord is the parquet row layout for option chain rows.
type OptionParquetRecord struct {
	Timestamp       int64   `parquet:"name=timestamp, type=INT64"`
	Strike          float64 `parquet:"name=strike, type=DOUBLE"`
	Side            string  `parquet:"name=side, type=BYTE_ARRAY, convertedtype=UTF8"`
	Close           float64 `parquet:"name=close, type=DOUBLE"`
	Delta           float64 `parquet:"name=delta, type=DOUBLE"`
	UnderlyingClose float64 `parquet:"name=underlying_close, type=DOUBLE"`
	ExpiryDate      string  `parquet:"name=expiry_date, type=BYTE_ARRAY, convertedtype=UTF8"`
	OpenInterest    int64   `parquet:"name=open_interest, type=INT64"`
}

// memoryFileWriter implements ParquetFile interface for in-memory writing
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{
		buffer: &bytes.Buffer{},
	}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error) {
	return mfw, nil
}

func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error) {
	return mfw.buffer.Read(b)
}

func (mfw *memoryFileWriter) Write(b []byte) (int, error) {
	return mfw.buffer.Write(b)
}

func (mfw *memoryFileWriter) Close() error {
	return nil
}

func (mfw *memoryFileWriter) Bytes() []byte {
	return mfw.buffer.Bytes()
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// EncodeIndexCSV renders index bars as a CSV document.
func EncodeIndexCSV(bars []models.IndexBar) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"timestamp", "open", "high", "low", "close", "regime", "sigma", "close_ema"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, bar := range bars {
		row := []string{
			bar.Timestamp.UTC().Format(timestampLayout),
			formatFloat(bar.Open),
			formatFloat(bar.High),
			formatFloat(bar.Low),
			formatFloat(bar.Close),
			strconv.Itoa(bar.RegimeID),
			formatFloat(bar.SigmaUsed),
			formatFloat(bar.CloseEMA),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeOptionsCSV renders option chain rows as a CSV document.
func EncodeOptionsCSV(options []models.OptionRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"timestamp", "strike", "side", "close", "delta", "underlying_close", "expiry_date", "open_interest"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, opt := range options {
		row := []string{
			opt.Timestamp.UTC().Format(timestampLayout),
			formatFloat(opt.Strike),
			string(opt.Side),
			formatFloat(opt.Close),
			formatFloat(opt.Delta),
			formatFloat(opt.UnderlyingClose),
			opt.ExpiryDate.UTC().Format(timestampLayout),
			strconv.FormatInt(opt.OpenInterest, 10),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodePathCSV renders a dated close-only price path as a CSV document.
func EncodePathCSV(dates []time.Time, prices []float64) ([]byte, error) {
	if len(dates) != len(prices) {
		return nil, fmt.Errorf("date count %d does not match price count %d", len(dates), len(prices))
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"date", "price"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for i, date := range dates {
		row := []string{date.UTC().Format("2006-01-02"), formatFloat(prices[i])}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeChainCSV renders a single-expiry option chain as a CSV document.
func EncodeChainCSV(strikes, calls, puts []float64, expiryDays int) ([]byte, error) {
	if len(calls) != len(strikes) || len(puts) != len(strikes) {
		return nil, fmt.Errorf("chain column lengths differ: %d strikes, %d calls, %d puts", len(strikes), len(calls), len(puts))
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"strike_price", "call_price", "put_price", "days_to_expiry"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}
	for i := range strikes {
		row := []string{
			formatFloat(strikes[i]),
			formatFloat(calls[i]),
			formatFloat(puts[i]),
			strconv.Itoa(expiryDays),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}
	return buf.Bytes(), nil
}

func compressionCodec(name string) parquet.CompressionCodec {
	switch name {
	case "snappy":
		return parquet.CompressionCodec_SNAPPY
	case "gzip":
		return parquet.CompressionCodec_GZIP
	case "lzo":
		return parquet.CompressionCodec_LZO
	default:
		return parquet.CompressionCodec_UNCOMPRESSED
	}
}

// EncodeIndexParquet renders index bars as an in-memory parquet file.
func EncodeIndexParquet(bars []models.IndexBar, compression string) ([]byte, error) {
	fw := newMemoryFileWriter()
	pw, err := writer.NewParquetWriter(fw, new(IndexParquetRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = compressionCodec(compression)

	for _, bar := range bars {
		record := IndexParquetRecord{
			Timestamp: bar.Timestamp.UnixMilli(),
			Open:      bar.Open,
			High:      bar.High,
			Low:       bar.Low,
			Close:     bar.Close,
			Regime:    int32(bar.RegimeID),
			Sigma:     bar.SigmaUsed,
			CloseEMA:  bar.CloseEMA,
		}
		if err := pw.Write(record); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return fw.Bytes(), nil
}

// EncodeOptionsParquet renders option chain rows as an in-memory parquet file.
func EncodeOptionsParquet(options []models.OptionRecord, compression string) ([]byte, error) {
	fw := newMemoryFileWriter()
	pw, err := writer.NewParquetWriter(fw, new(OptionParquetRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = compressionCodec(compression)

	for _, opt := range options {
		record := OptionParquetRecord{
			Timestamp:       opt.Timestamp.UnixMilli(),
			Strike:          opt.Strike,
			Side:            string(opt.Side),
			Close:           opt.Close,
			Delta:           opt.Delta,
			UnderlyingClose: opt.UnderlyingClose,
			ExpiryDate:      opt.ExpiryDate.UTC().Format(timestampLayout),
			OpenInterest:    opt.OpenInterest,
		}
		if err := pw.Write(record); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return fw.Bytes(), nil
}
