package notebook

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/starford/nbhugo/internal/apperr"
	"github.com/starford/nbhugo/internal/models"
)

func TestParse_MultilineSourcesAndOutputs(t *testing.T) {
	data := []byte(`{
 "cells": [
  {"cell_type": "code", "metadata": {}, "source": ["a = 1\n", "a"],
   "outputs": [
    {"output_type": "execute_result", "data": {"text/plain": ["1"], "application/json": {"k": 1}}},
    {"output_type": "stream", "name": "stdout", "text": "hi\n"}
   ]}
 ],
 "metadata": {"language_info": {"name": "python"}, "front-matter": {"title": "T", "slug": "t", "toc": true}},
 "nbformat": 4, "nbformat_minor": 5
}`)
	nb, err := Parse(data)
	require.NoError(t, err)
	require.Len(t, nb.Cells, 1)
	require.Equal(t, "a = 1\na", nb.Cells[0].Source.String())
	require.Equal(t, "1", nb.Cells[0].Outputs[0].Data["text/plain"].String())
	require.Equal(t, "", nb.Cells[0].Outputs[0].Data["application/json"].String())
	require.Equal(t, "hi\n", nb.Cells[0].Outputs[1].Text.String())
	require.Equal(t, "python", nb.Metadata.Language())
	require.Equal(t, "true", nb.Metadata.FrontMatter.TOC)
	require.Equal(t, "t", nb.Metadata.Slug())
}

func TestParse_RejectsOldFormat(t *testing.T) {
	_, err := Parse([]byte(`{"nbformat": 3, "worksheets": []}`))
	require.ErrorIs(t, err, apperr.ErrMalformedNotebook)
}

func TestDocument_RoundTripKeepsUnknownKeys(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"cells": [], "metadata": {"z": 1}, "nbformat": 4, "nbformat_minor": 2, "extra": "<b>"}`))
	require.NoError(t, err)
	require.NoError(t, doc.SetHugoJupyter(models.HugoJupyter{RenderTo: "content/post/"}))

	out, err := doc.Bytes()
	require.NoError(t, err)
	require.Contains(t, string(out), `"extra": "<b>"`)
	require.Contains(t, string(out), `"render-to": "content/post/"`)
	require.Contains(t, string(out), `"z": 1`)

	again, err := ParseDocument(out)
	require.NoError(t, err)
	out2, err := again.Bytes()
	require.NoError(t, err)
	require.Equal(t, string(out), string(out2))
}

func TestDocument_NullMetadata(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"cells": [], "metadata": null}`))
	require.NoError(t, err)
	fm, err := doc.FrontMatter()
	require.NoError(t, err)
	require.Empty(t, fm.Slug)
}
