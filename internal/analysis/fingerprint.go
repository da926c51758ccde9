package analysis

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/taskbot/internal/extraction"
)

// Fingerprint is a stable, order-sensitive hash of a message sequence. Each
// text is length-prefixed so ["ab", "c"] and ["a", "bc"] differ.
func Fingerprint(texts []string) string {
	h := sha256.New()
	var n [8]byte
	for _, t := range texts {
		binary.BigEndian.PutUint64(n[:], uint64(len(t)))
		h.Write(n[:])
		h.Write([]byte(t))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CacheKey namespaces a fingerprint per user so identical transcripts from
// different users never share destination recommendations.
func CacheKey(userID, fingerprint string) string {
	return "analysis:" + userID + ":" + fingerprint
}

// TranscriptSeparator separates messages in the oracle transcript.
const TranscriptSeparator = "\n---\n"

// Transcript renders messages as "#ordinal [sender]: text" blocks. The
// ordinal lets the oracle reference source messages.
func Transcript(msgs []extraction.Message) string {
	parts := make([]string, len(msgs))
	for i, m := range msgs {
		parts[i] = "#" + strconv.Itoa(m.Ordinal) + " [" + m.SenderLabel() + "]: " + m.Text
	}
	return strings.Join(parts, TranscriptSeparator)
}
