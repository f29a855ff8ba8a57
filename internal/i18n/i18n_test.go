package i18n

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmthangdn2000/web-automation-tools/internal/mocks"
)

func TestDefaultTables(t *testing.T) {
	tr := Default()

	assert.Equal(t, "Hủy bỏ", tr.For("vi-VN").Get("cancel"))
	assert.Equal(t, "Cancel", tr.For("en-US").Get("cancel"))
	assert.Equal(t, "Cancel", tr.For("ja").Get("cancel"), "unknown languages use the fallback")
	assert.Equal(t, "no_such_key", tr.For("vi").Get("no_such_key"))
	assert.ElementsMatch(t, []string{"en", "vi"}, tr.Languages())
}

func TestForFillsMissingKeysFromFallback(t *testing.T) {
	tr := New(map[string]Labels{
		"en": {"cancel": "Cancel", "post": "Post"},
		"vi": {"cancel": "Hủy bỏ"},
	}, "en")

	l := tr.For("vi")
	assert.Equal(t, "Hủy bỏ", l.Get("cancel"))
	assert.Equal(t, "Post", l.Get("post"))
}

func TestMerge(t *testing.T) {
	extra, err := Parse([]byte("vi:\n  cancel: Huỷ\nth:\n  cancel: ยกเลิก\n"))
	require.NoError(t, err)

	tr := Default().Merge(extra)
	assert.Equal(t, "Huỷ", tr.For("vi").Get("cancel"))
	assert.Equal(t, "ยกเลิก", tr.For("th-TH").Get("cancel"))
	assert.Equal(t, "Hủy bỏ", Default().For("vi").Get("cancel"), "merge must not mutate the source")
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := Parse([]byte("en: [not, a, map]"))
	assert.Error(t, err)
}

func TestDetectLanguage(t *testing.T) {
	page := mocks.NewFakePage()
	page.OnEvaluate(func(script string) (interface{}, error) {
		return map[string]string{"declared": "vi-VN", "browser": "en-US"}, nil
	})

	lang, err := DetectLanguage(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, "vi", lang)

	page.OnEvaluate(func(script string) (interface{}, error) {
		return map[string]string{"declared": "", "browser": "en-US"}, nil
	})
	read, err := ReadLanguage(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, PageLanguage{Browser: "en"}, read, "about:blank declares nothing")
	assert.Equal(t, "en", read.Resolve())

	page.OnEvaluate(func(string) (interface{}, error) { return nil, errors.New("target closed") })
	_, err = DetectLanguage(context.Background(), page)
	assert.ErrorContains(t, err, "target closed")
}
