package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAttachment(t *testing.T) {
	assert.NoError(t, ValidateAttachment("application/pdf", 1024))
	assert.NoError(t, ValidateAttachment("IMAGE/PNG", MaxAttachmentSize))
	assert.Error(t, ValidateAttachment("application/pdf", 0))
	assert.Error(t, ValidateAttachment("application/pdf", MaxAttachmentSize+1))
	assert.Error(t, ValidateAttachment("application/x-msdownload", 10))
}

func TestAttachmentKey(t *testing.T) {
	prefix := "attachments/e/t/"
	key := AttachmentKey(prefix, "../../etc/Floor Plan (v2).pdf")
	assert.True(t, strings.HasPrefix(key, prefix))
	assert.True(t, strings.HasSuffix(key, "-Floor_Plan_v2_.pdf"), key)
	assert.NotContains(t, strings.TrimPrefix(key, prefix), "/")

	assert.True(t, strings.HasSuffix(AttachmentKey(prefix, "..."), "-file"))
	assert.NotEqual(t, AttachmentKey(prefix, "a.txt"), AttachmentKey(prefix, "a.txt"))
}
