package service

import (
	"context"
	"errors"
	"testing"

	"docchat-go/internal/model"
	"docchat-go/pkg/pdf"
	"docchat-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// callRecorder 按顺序记录跨组件的调用，用于验证级联删除顺序。
type callRecorder struct {
	calls []string
}

func (r *callRecorder) record(name string) {
	r.calls = append(r.calls, name)
}

type recDocumentRepo struct {
	rec  *callRecorder
	docs map[string]*model.Document
}

func (r *recDocumentRepo) Create(doc *model.Document) error {
	r.rec.record("mysql.create")
	r.docs[doc.ID] = doc
	return nil
}

func (r *recDocumentRepo) FindByID(id string) (*model.Document, error) {
	doc, ok := r.docs[id]
	if !ok {
		return nil, errors.New("document not found")
	}
	return doc, nil
}

func (r *recDocumentRepo) FindAllActive() ([]model.Document, error) {
	var out []model.Document
	for _, doc := range r.docs {
		out = append(out, *doc)
	}
	return out, nil
}

func (r *recDocumentRepo) Delete(id string) error {
	r.rec.record("mysql.delete")
	delete(r.docs, id)
	return nil
}

type recEsDocRepo struct {
	rec *callRecorder
}

func (r *recEsDocRepo) Index(ctx context.Context, documentID string, doc model.EsDocument) error {
	r.rec.record("es.index")
	return nil
}

func (r *recEsDocRepo) Delete(ctx context.Context, documentID string) error {
	r.rec.record("es.delete")
	return nil
}

func (r *recEsDocRepo) TextSearch(ctx context.Context, query string, limit int) ([]model.TextHit, error) {
	return nil, nil
}

type recChunkRepo struct {
	rec *callRecorder
}

func (r *recChunkRepo) BulkIndex(ctx context.Context, chunks []*model.DocumentChunk) error {
	return nil
}

func (r *recChunkRepo) VectorSearch(ctx context.Context, queryVector []float32, limit int, minScore float64) ([]model.ChunkHit, error) {
	return nil, nil
}

func (r *recChunkRepo) DeleteByDocumentID(ctx context.Context, documentID string) error {
	r.rec.record("chunks.delete")
	return nil
}

type recObjectStore struct {
	rec       *callRecorder
	removeErr error
}

func (s *recObjectStore) Put(ctx context.Context, objectName string, data []byte, contentType string) error {
	s.rec.record("minio.put")
	return nil
}

func (s *recObjectStore) Remove(ctx context.Context, objectName string) error {
	s.rec.record("minio.remove")
	return s.removeErr
}

type fakeExtractor struct {
	result *pdf.ExtractResult
	err    error
}

func (f *fakeExtractor) Extract(data []byte) (*pdf.ExtractResult, error) {
	return f.result, f.err
}

func newDocumentFixture(removeErr error) (DocumentService, *callRecorder, *recDocumentRepo) {
	rec := &callRecorder{}
	docRepo := &recDocumentRepo{rec: rec, docs: make(map[string]*model.Document)}
	svc := NewDocumentService(
		docRepo,
		&recEsDocRepo{rec: rec},
		&recChunkRepo{rec: rec},
		&fakeExtractor{result: &pdf.ExtractResult{Content: "extracted text", PageCount: 3}},
		&recObjectStore{rec: rec, removeErr: removeErr},
		func(task tasks.DocumentProcessingTask) error {
			rec.record("kafka.produce")
			return nil
		},
	)
	return svc, rec, docRepo
}

func TestUpload_RejectsNonPDF(t *testing.T) {
	svc, _, _ := newDocumentFixture(nil)

	_, err := svc.Upload(context.Background(), "notes.txt", []byte("hello"))
	assert.ErrorIs(t, err, ErrInvalidFile)
}

func TestUpload_RejectsOversizedFile(t *testing.T) {
	svc, _, _ := newDocumentFixture(nil)

	_, err := svc.Upload(context.Background(), "big.pdf", make([]byte, maxUploadSize+1))
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestUpload_StoresExtractsIndexesAndProduces(t *testing.T) {
	svc, rec, _ := newDocumentFixture(nil)

	doc, err := svc.Upload(context.Background(), "manual.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)

	assert.Equal(t, "manual", doc.Title)
	assert.Equal(t, 3, doc.PageCount)
	assert.Equal(t, "extracted text", doc.Content)
	assert.Equal(t, []string{"minio.put", "mysql.create", "es.index", "kafka.produce"}, rec.calls)
}

func TestDelete_CascadesInOrder(t *testing.T) {
	svc, rec, _ := newDocumentFixture(nil)

	doc, err := svc.Upload(context.Background(), "manual.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	rec.calls = nil

	require.NoError(t, svc.Delete(context.Background(), doc.ID))

	// 分块先删，其次文档索引和数据库记录，最后对象存储
	assert.Equal(t, []string{"chunks.delete", "es.delete", "mysql.delete", "minio.remove"}, rec.calls)
}

func TestDelete_FileRemovalFailureIsNonFatal(t *testing.T) {
	svc, _, _ := newDocumentFixture(errors.New("minio unreachable"))

	doc, err := svc.Upload(context.Background(), "manual.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)

	// 对象存储删除失败不影响级联删除的结果
	assert.NoError(t, svc.Delete(context.Background(), doc.ID))
}
