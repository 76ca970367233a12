package documents

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/studyflow/internal/extract"
	"github.com/bull/studyflow/internal/github"
	"github.com/bull/studyflow/internal/storage"
	"github.com/bull/studyflow/internal/study"
)

type fakeIndex struct {
	deleted []string
}

func (f *fakeIndex) Delete(ctx context.Context, documentID string) error {
	f.deleted = append(f.deleted, documentID)
	return nil
}

type fakeFetcher struct {
	docs []*github.FetchedDoc
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, ref github.Ref) ([]*github.FetchedDoc, error) {
	return f.docs, f.err
}

func newTestService(t *testing.T) (*Service, afero.Fs, *fakeIndex) {
	t.Helper()
	fsys := afero.NewMemMapFs()
	idx := &fakeIndex{}
	svc, err := NewService(fsys, storage.NewMemoryRepository(), extract.New(), Options{Root: "/data/documents", Index: idx})
	require.NoError(t, err)
	return svc, fsys, idx
}

func TestService_UploadAndText(t *testing.T) {
	svc, fsys, _ := newTestService(t)
	ctx := context.Background()

	doc, err := svc.Upload(ctx, "../notes.md", strings.NewReader("# Cells\n\nCells are the unit of life."))
	require.NoError(t, err)
	assert.Equal(t, "notes.md", doc.FileName)
	assert.Equal(t, extract.ContentTypeMarkdown, doc.ContentType)
	assert.Equal(t, study.StatusUploaded, doc.Status)
	assert.Equal(t, "/data/documents/"+doc.ID+"_notes.md", doc.StoragePath)

	exists, err := afero.Exists(fsys, doc.StoragePath)
	require.NoError(t, err)
	assert.True(t, exists)

	text, err := svc.Text(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "# Cells\n\nCells are the unit of life.", text)

	stored, err := svc.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.NoError(t, svc.Save(ctx, stored))
	_, err = svc.DocumentText(ctx, stored)
	require.NoError(t, err)
	assert.Equal(t, []string{"Cells"}, stored.Outline)
}

func TestService_UploadRejects(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Upload(ctx, "", strings.NewReader("text"))
	assert.ErrorIs(t, err, study.ErrInvalidInput)

	_, err = svc.Upload(ctx, "empty.txt", strings.NewReader(""))
	assert.ErrorIs(t, err, study.ErrInvalidInput)

	big := bytes.Repeat([]byte("a"), MaxFileSize+1)
	_, err = svc.Upload(ctx, "big.txt", bytes.NewReader(big))
	assert.ErrorIs(t, err, ErrTooLarge)

	docs, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestService_TextNotAvailable(t *testing.T) {
	svc, fsys, _ := newTestService(t)
	ctx := context.Background()

	img, err := svc.Upload(ctx, "photo.png", bytes.NewReader([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")))
	require.NoError(t, err)
	_, err = svc.Text(ctx, img.ID)
	assert.ErrorIs(t, err, study.ErrNotAvailable)

	blank, err := svc.Upload(ctx, "blank.txt", strings.NewReader("   \n\n  "))
	require.NoError(t, err)
	_, err = svc.Text(ctx, blank.ID)
	assert.ErrorIs(t, err, study.ErrNotAvailable)

	gone, err := svc.Upload(ctx, "gone.txt", strings.NewReader("Some text."))
	require.NoError(t, err)
	require.NoError(t, fsys.Remove(gone.StoragePath))
	_, err = svc.Text(ctx, gone.ID)
	assert.ErrorIs(t, err, study.ErrNotAvailable)

	_, err = svc.Text(ctx, "missing")
	assert.ErrorIs(t, err, study.ErrNotFound)
}

func TestService_Delete(t *testing.T) {
	svc, fsys, idx := newTestService(t)
	ctx := context.Background()

	doc, err := svc.Upload(ctx, "notes.txt", strings.NewReader("Some text."))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, doc.ID))
	assert.Equal(t, []string{doc.ID}, idx.deleted)

	exists, err := afero.Exists(fsys, doc.StoragePath)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = svc.Get(ctx, doc.ID)
	assert.ErrorIs(t, err, study.ErrNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, doc.ID), study.ErrNotFound)
}

func TestService_ImportFromGitHub(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	ref := github.Ref{Owner: "acme", Repo: "notes", Path: "biology"}

	fetcher := &fakeFetcher{docs: []*github.FetchedDoc{
		{Path: "biology/cells.md", Content: []byte("# Cells\n\nCells divide."), SHA: "abc123"},
		{Path: "biology/genes.txt", Content: []byte("Genes encode proteins.")},
	}}
	docs, err := svc.ImportFromGitHub(ctx, fetcher, ref)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "cells.md", docs[0].FileName)
	assert.Equal(t, "acme/notes/biology/cells.md@abc123", docs[0].Source)
	assert.Equal(t, "acme/notes/biology/genes.txt", docs[1].Source)

	_, err = svc.ImportFromGitHub(ctx, &fakeFetcher{}, ref)
	assert.ErrorIs(t, err, study.ErrNotFound)

	boom := errors.New("boom")
	_, err = svc.ImportFromGitHub(ctx, &fakeFetcher{err: boom}, ref)
	assert.ErrorIs(t, err, boom)
}
