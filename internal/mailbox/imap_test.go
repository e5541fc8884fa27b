package mailbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescendingUIDs(t *testing.T) {
	uids := []uint32{3, 10, 7, 1}
	descendingUIDs(uids)
	assert.Equal(t, []uint32{10, 7, 3, 1}, uids)
}
