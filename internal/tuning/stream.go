package tuning

import (
	"bytes"
	"encoding/json"

	goopenai "github.com/sashabaranov/go-openai"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// lineSplitter cuts a byte stream into lines. The incomplete tail is kept
// until the next chunk. '\n' never occurs inside a multi-byte UTF-8 sequence,
// so characters split across chunks are reassembled before decoding.
type lineSplitter struct {
	carry []byte
}

// Feed appends chunk and returns every completed line without its terminator.
func (s *lineSplitter) Feed(chunk []byte) []string {
	s.carry = append(s.carry, chunk...)
	var lines []string
	for {
		i := bytes.IndexByte(s.carry, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(bytes.TrimSuffix(s.carry[:i], []byte("\r"))))
		s.carry = s.carry[i+1:]
	}
	if len(s.carry) == 0 {
		s.carry = nil
	}
	return lines
}

// Flush returns the unterminated tail, if any.
func (s *lineSplitter) Flush() (string, bool) {
	if len(s.carry) == 0 {
		return "", false
	}
	line := string(bytes.TrimSuffix(s.carry, []byte("\r")))
	s.carry = nil
	return line, true
}

type frameKind int

const (
	frameSkip frameKind = iota
	frameDelta
	frameDone
)

// parseFrame interprets one SSE line. Lines that are not data frames, and
// data frames that are not valid chunk JSON, are skipped.
func parseFrame(line string) (frameKind, string) {
	if len(line) < len(dataPrefix) || line[:len(dataPrefix)] != dataPrefix {
		return frameSkip, ""
	}
	payload := line[len(dataPrefix):]
	if payload == doneSentinel {
		return frameDone, ""
	}
	var chunk goopenai.ChatCompletionStreamResponse
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return frameSkip, ""
	}
	if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
		return frameSkip, ""
	}
	return frameDelta, chunk.Choices[0].Delta.Content
}

// parseCompletion extracts choices[0].message.content from a non-streamed body.
func parseCompletion(body []byte) (string, error) {
	var resp goopenai.ChatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
