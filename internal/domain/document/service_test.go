package document

import (
	"bytes"
	"context"
	"io"
	"testing"

	"loanflow-server/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// minimal valid PNG header plus payload, enough for content sniffing.
var pngData = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0x01, 0x02, 0x03}, 64)...)

var pdfData = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n%%EOF\n")

type memoryStorage struct {
	files map[string][]byte
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{files: map[string][]byte{}}
}

func (m *memoryStorage) Upload(_ context.Context, key string, body io.Reader) (int64, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return 0, err
	}
	m.files[key] = data
	return int64(len(data)), nil
}

func (m *memoryStorage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.files[key])), nil
}

func testService(store *memoryStorage) *Service {
	cfg := &config.Config{MaxUploadBytes: 1024}
	return NewService(cfg, store, zerolog.Nop())
}

func TestStoreUploadAcceptsSupportedTypes(t *testing.T) {
	store := newMemoryStorage()
	svc := testService(store)

	doc, err := svc.StoreUpload(context.Background(), "sess_1", TypeSalarySlip, "march payslip.png", pngData)
	require.NoError(t, err)

	assert.Equal(t, "sess_1", doc.SessionID)
	assert.Equal(t, TypeSalarySlip, doc.Type)
	assert.Equal(t, "march payslip.png", doc.Filename)
	assert.Equal(t, "image/png", doc.MimeType)
	assert.Equal(t, int64(len(pngData)), doc.Bytes)
	assert.NotEmpty(t, doc.Sha256)
	assert.Contains(t, doc.StorageKey, TypeSalarySlip+"/")
	assert.Contains(t, store.files, doc.StorageKey)

	pdfDoc, err := svc.StoreUpload(context.Background(), "sess_1", TypeBankStatement, "statement.pdf", pdfData)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", pdfDoc.MimeType)
}

func TestStoreUploadRejectsUnsupportedType(t *testing.T) {
	svc := testService(newMemoryStorage())

	_, err := svc.StoreUpload(context.Background(), "sess_1", TypeSalarySlip, "notes.txt", []byte("plain text, not a document"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file type")
}

func TestStoreUploadRejectsEmptyAndOversized(t *testing.T) {
	svc := testService(newMemoryStorage())

	_, err := svc.StoreUpload(context.Background(), "sess_1", TypeSalarySlip, "empty.png", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")

	big := append(append([]byte{}, pngData...), bytes.Repeat([]byte{0}, 2048)...)
	_, err = svc.StoreUpload(context.Background(), "sess_1", TypeSalarySlip, "big.png", big)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload limit")
}

func TestStoreUploadSanitizesFilename(t *testing.T) {
	store := newMemoryStorage()
	svc := testService(store)

	doc, err := svc.StoreUpload(context.Background(), "sess_1", TypeSalarySlip, "../../evil.png", pngData)
	require.NoError(t, err)
	assert.Equal(t, "evil.png", doc.Filename)
}

func TestExtractSalaryIsDeterministic(t *testing.T) {
	store := newMemoryStorage()
	svc := testService(store)

	doc, err := svc.StoreUpload(context.Background(), "sess_1", TypeSalarySlip, "payslip.png", pngData)
	require.NoError(t, err)

	first := svc.ExtractSalary(doc)
	second := svc.ExtractSalary(doc)

	assert.Equal(t, first.MonthlySalary, second.MonthlySalary)
	assert.GreaterOrEqual(t, first.MonthlySalary, 30000.0)
	assert.LessOrEqual(t, first.MonthlySalary, 129500.0)
	assert.InDelta(t, first.MonthlySalary*0.12, first.Deductions, 0.01)
	assert.InDelta(t, first.MonthlySalary-first.Deductions, first.NetSalary, 0.01)
	assert.Equal(t, "simulated_ocr", first.Method)
	assert.InDelta(t, 0.92, first.Confidence, 0.001)
}
