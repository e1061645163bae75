package transport

import "strings"

// MaxMessageLength is the outbound size cap most messaging platforms
// enforce per message.
const MaxMessageLength = 4096

// Split chunks text into pieces of at most max bytes, preferring newline
// boundaries so paragraphs stay intact. max <= 0 falls back to
// MaxMessageLength. The pieces concatenate back to the original text minus
// the newlines consumed at chunk boundaries.
func Split(text string, max int) []string {
	if max <= 0 {
		max = MaxMessageLength
	}
	if len(text) <= max {
		return []string{text}
	}

	var chunks []string
	for len(text) > max {
		cut := strings.LastIndexByte(text[:max], '\n')
		if cut <= 0 {
			// No usable newline: hard cut, avoiding a split inside a
			// multi-byte rune.
			cut = max
			for cut > 0 && !isRuneStart(text[cut]) {
				cut--
			}
			if cut == 0 {
				cut = max
			}
			chunks = append(chunks, text[:cut])
			text = text[cut:]
			continue
		}
		chunks = append(chunks, text[:cut])
		text = text[cut+1:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// isRuneStart reports whether b can begin a UTF-8 sequence.
func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
