package x12

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Placeholder control numbers used when the caller does not supply its own.
// They are not unique across interchanges.
const (
	DefaultInterchangeControl = "000000001"
	DefaultGroupControl       = "1"
	DefaultTransactionControl = "0001"
)

// Envelope carries the ISA/GS/ST header values.
type Envelope struct {
	SenderID           string
	ReceiverID         string
	InterchangeControl string
	GroupControl       string
	TransactionControl string
	// Usage is ISA15: "P" production or "T" test. Defaults to "P".
	Usage string
	Time  time.Time
}

func (e Envelope) withDefaults() Envelope {
	if e.InterchangeControl == "" {
		e.InterchangeControl = DefaultInterchangeControl
	}
	if e.GroupControl == "" {
		e.GroupControl = DefaultGroupControl
	}
	if e.TransactionControl == "" {
		e.TransactionControl = DefaultTransactionControl
	}
	if e.Usage == "" {
		e.Usage = "P"
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	return e
}

func (e Envelope) validate() error {
	if e.SenderID == "" || e.ReceiverID == "" {
		return fmt.Errorf("x12: sender and receiver ids are required")
	}
	if len(e.SenderID) > 15 || len(e.ReceiverID) > 15 {
		return fmt.Errorf("x12: sender and receiver ids are limited to 15 characters")
	}
	if !digits(e.InterchangeControl, 1, 9) {
		return fmt.Errorf("x12: interchange control number must be 1-9 digits, got %q", e.InterchangeControl)
	}
	if !digits(e.GroupControl, 1, 9) {
		return fmt.Errorf("x12: group control number must be 1-9 digits, got %q", e.GroupControl)
	}
	if len(e.TransactionControl) < 4 || len(e.TransactionControl) > 9 {
		return fmt.Errorf("x12: transaction control number must be 4-9 characters, got %q", e.TransactionControl)
	}
	if e.Usage != "P" && e.Usage != "T" {
		return fmt.Errorf("x12: usage indicator must be P or T, got %q", e.Usage)
	}
	return nil
}

func digits(s string, min, max int) bool {
	if len(s) < min || len(s) > max {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}

// Generate frames body in a complete interchange: ISA, GS, ST, body, SE, GE,
// IEA, in that order, each segment terminated by "~". SE01 counts the
// segments from ST to SE inclusive.
func Generate(txType TransactionType, env Envelope, body []Segment) (string, error) {
	if !IsValidType(string(txType)) {
		return "", fmt.Errorf("x12: unsupported transaction type %q", txType)
	}
	env = env.withDefaults()
	if err := env.validate(); err != nil {
		return "", err
	}

	icn := strings.Repeat("0", 9-len(env.InterchangeControl)) + env.InterchangeControl

	segments := make([]Segment, 0, len(body)+6)
	segments = append(segments,
		Segment{ID: "ISA", Elements: []string{
			"00", strings.Repeat(" ", 10),
			"00", strings.Repeat(" ", 10),
			"ZZ", pad(scrub(env.SenderID), 15),
			"ZZ", pad(scrub(env.ReceiverID), 15),
			env.Time.Format("060102"),
			env.Time.Format("1504"),
			RepetitionSep,
			"00501",
			icn,
			"0",
			env.Usage,
			ComponentSep,
		}},
		Seg("GS", txType.FunctionalID(), env.SenderID, env.ReceiverID,
			env.Time.Format("20060102"), env.Time.Format("1504"),
			env.GroupControl, "X", txType.Version()),
		Seg("ST", string(txType), env.TransactionControl, txType.Version()),
	)
	segments = append(segments, body...)
	segments = append(segments,
		Seg("SE", strconv.Itoa(len(body)+2), env.TransactionControl),
		Seg("GE", "1", env.GroupControl),
		Seg("IEA", "1", icn),
	)

	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.String())
		b.WriteString(SegmentTerm)
	}
	return b.String(), nil
}

func pad(s string, n int) string {
	if len(s) >= n {
		return s[:n]
	}
	return s + strings.Repeat(" ", n-len(s))
}
