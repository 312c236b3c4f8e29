package flow

import "strings"

type scanMode int

const (
	modeUndecided scanMode = iota // nothing visible yet
	modeStream                    // plain prose, emitted as it arrives
	modeHold                      // response opens like a JSON payload, held until the round ends
	modeTool                      // <tool_call> seen, the rest of the round is markup
	modeFence                     // first ``` block after prose, held until it closes
)

const fenceMark = "```"

// scanner turns raw model chunks of one round into text that is safe to
// show. It hides <think> blocks, stops emitting at a <tool_call> tag,
// withholds a fenced tool call payload and holds back partial tags split
// across chunk boundaries.
type scanner struct {
	buf     string
	inThink bool
	mode    scanMode
	fenced  bool // the first fence after prose was already decided
	visible strings.Builder
	pending strings.Builder
	fence   strings.Builder
}

// Feed consumes a chunk and returns the text that may be emitted now.
func (s *scanner) Feed(chunk string) string {
	s.buf += chunk
	var out strings.Builder
	for {
		if s.inThink {
			j := strings.Index(s.buf, thinkClose)
			if j < 0 {
				s.buf = s.buf[len(s.buf)-partialSuffix(s.buf, thinkClose):]
				return out.String()
			}
			s.buf = s.buf[j+len(thinkClose):]
			s.inThink = false
			continue
		}
		if i := strings.Index(s.buf, thinkOpen); i >= 0 {
			out.WriteString(s.accept(s.buf[:i]))
			s.buf = s.buf[i+len(thinkOpen):]
			s.inThink = true
			continue
		}
		hold := partialSuffix(s.buf, thinkOpen, toolCallOpen, fenceMark)
		out.WriteString(s.accept(s.buf[:len(s.buf)-hold]))
		s.buf = s.buf[len(s.buf)-hold:]
		return out.String()
	}
}

// Flush ends the round and returns any text that was still held back
// while undecided. Held JSON-like text is not released; see Held.
func (s *scanner) Flush() string {
	var out strings.Builder
	if !s.inThink {
		out.WriteString(s.accept(s.buf))
	}
	s.buf = ""
	if s.mode == modeFence {
		f := s.fence.String()
		s.fence.Reset()
		s.mode = modeStream
		out.WriteString(s.cutAtToolCall(f))
	}
	if s.mode == modeUndecided {
		out.WriteString(s.pending.String())
		s.pending.Reset()
		s.mode = modeStream
	}
	return out.String()
}

// Held returns the text withheld in hold mode.
func (s *scanner) Held() string {
	if s.mode != modeHold {
		return ""
	}
	return s.visible.String()
}

// Text returns the complete round text with reasoning removed.
func (s *scanner) Text() string { return s.visible.String() }

func (s *scanner) accept(text string) string {
	if text == "" {
		return ""
	}
	s.visible.WriteString(text)

	switch s.mode {
	case modeHold, modeTool:
		return ""
	case modeStream:
		return s.stream(text)
	case modeFence:
		s.fence.WriteString(text)
		return s.closeFence()
	}

	s.pending.WriteString(text)
	lead := strings.TrimLeft(s.pending.String(), " \t\r\n")
	switch {
	case lead == "":
		return ""
	case strings.HasPrefix(lead, "{"), strings.HasPrefix(lead, "```"):
		s.mode = modeHold
		return ""
	case strings.HasPrefix("```", lead):
		return ""
	}
	s.mode = modeStream
	p := s.pending.String()
	s.pending.Reset()
	return s.stream(p)
}

// stream emits prose up to a <tool_call> tag or the first fence.
func (s *scanner) stream(text string) string {
	if s.fenced {
		return s.cutAtToolCall(text)
	}
	i := strings.Index(text, fenceMark)
	if i < 0 {
		return s.cutAtToolCall(text)
	}
	head := s.cutAtToolCall(text[:i])
	if s.mode == modeTool {
		return head
	}
	s.mode = modeFence
	s.fenced = true
	s.fence.WriteString(text[i:])
	return head + s.closeFence()
}

// closeFence decides a held fence once its closing mark arrived. A block
// that parses as a tool call is dropped, anything else is released.
func (s *scanner) closeFence() string {
	f := s.fence.String()
	j := strings.Index(f[len(fenceMark):], fenceMark)
	if j < 0 {
		return ""
	}
	end := len(fenceMark) + j + len(fenceMark)
	block, rest := f[:end], f[end:]
	s.fence.Reset()
	s.mode = modeStream

	if m := fencedBlock.FindStringSubmatch(block); m != nil {
		if _, ok := parseCallPayload(m[1]); ok {
			return s.stream(rest)
		}
	}
	out := s.cutAtToolCall(block)
	if s.mode == modeTool {
		return out
	}
	return out + s.stream(rest)
}

func (s *scanner) cutAtToolCall(text string) string {
	if i := strings.Index(text, toolCallOpen); i >= 0 {
		s.mode = modeTool
		return text[:i]
	}
	return text
}

// partialSuffix returns the length of the longest suffix of s that is a
// proper prefix of one of tags.
func partialSuffix(s string, tags ...string) int {
	best := 0
	for _, tag := range tags {
		for n := min(len(tag)-1, len(s)); n > best; n-- {
			if strings.HasSuffix(s, tag[:n]) {
				best = n
				break
			}
		}
	}
	return best
}
