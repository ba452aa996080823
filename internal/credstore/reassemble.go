package credstore

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jredh-dev/shroud/pkg/cce"
)

// decimal matches the indexes and counts Save writes: no sign, no leading zeros.
var decimal = regexp.MustCompile(`^(0|[1-9][0-9]*)$`)

// Reassemble rebuilds a credential from the entry map recovered by the header
// codec. Keys and values are still sealed under the static alphabet.
//
// The entries must name a gapless run chunk_0..chunk_<n-1>; when the count
// record is present it must equal n. Anything else is ErrIncompleteCredential.
func Reassemble(cipher *cce.Cipher, entries map[string]string) (string, error) {
	type chunk struct {
		idx   int
		value string
	}
	var (
		chunks []chunk
		count  = -1
	)
	for k, v := range entries {
		name, err := open(cipher, k)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrIncompleteCredential, err)
		}
		value, err := open(cipher, v)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrIncompleteCredential, name, err)
		}

		if name == CountName {
			if !decimal.MatchString(value) {
				return "", fmt.Errorf("%w: invalid count %q", ErrIncompleteCredential, value)
			}
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return "", fmt.Errorf("%w: invalid count %q", ErrIncompleteCredential, value)
			}
			count = n
			continue
		}
		suffix, found := strings.CutPrefix(name, ChunkPrefix)
		if !found || !decimal.MatchString(suffix) {
			return "", fmt.Errorf("%w: unexpected name %q", ErrIncompleteCredential, name)
		}
		idx, err := strconv.Atoi(suffix)
		if err != nil {
			return "", fmt.Errorf("%w: unexpected name %q", ErrIncompleteCredential, name)
		}
		chunks = append(chunks, chunk{idx: idx, value: value})
	}

	if len(chunks) == 0 {
		return "", fmt.Errorf("%w: no chunks", ErrIncompleteCredential)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].idx < chunks[j].idx })

	var b strings.Builder
	for i, c := range chunks {
		if c.idx != i {
			return "", fmt.Errorf("%w: chunk %d missing", ErrIncompleteCredential, i)
		}
		b.WriteString(c.value)
	}
	if count >= 0 && count != len(chunks) {
		return "", fmt.Errorf("%w: have %d chunks, count says %d", ErrIncompleteCredential, len(chunks), count)
	}
	return b.String(), nil
}
