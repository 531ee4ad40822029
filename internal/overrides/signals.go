package overrides

import (
	"regexp"
	"strings"
)

// Signal is a transcript predicate that can trigger an override.
type Signal interface {
	Detect(transcript string) bool
}

// SignalFunc adapts a plain function to Signal.
type SignalFunc func(transcript string) bool

func (f SignalFunc) Detect(transcript string) bool { return f(transcript) }

// PatternSignal fires when any of its patterns matches the normalized
// transcript.
type PatternSignal struct {
	patterns []*regexp.Regexp
}

// NewPatternSignal compiles patterns after normalizing them, so they may be
// written with or without accents. It panics on an invalid pattern.
func NewPatternSignal(patterns ...string) *PatternSignal {
	ps := &PatternSignal{patterns: make([]*regexp.Regexp, 0, len(patterns))}
	for _, p := range patterns {
		ps.patterns = append(ps.patterns, regexp.MustCompile(Normalize(p)))
	}
	return ps
}

func (p *PatternSignal) Detect(transcript string) bool {
	return p.matchNormalized(Normalize(transcript))
}

func (p *PatternSignal) matchNormalized(s string) bool {
	for _, re := range p.patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// ThirdPartySignal detects that the person who answered is not the account
// holder.
func ThirdPartySignal() *PatternSignal {
	return NewPatternSignal(
		`no soy yo`,
		`es mi (hija|hijo|esposo|esposa|mamá|papá|madre|padre|hermano|hermana|señora|señor)`,
		`no vive conmigo`,
		`no (está|se encuentra)`,
		`ella no está|él no está`,
		`no es (el|la) titular`,
		`yo no soy`,
		`pero no soy`,
		`esa persona no`,
		`no la conozco|no lo conozco`,
	)
}

// ObjectionSignal detects that the customer raised an objection the agent
// had to handle.
func ObjectionSignal() *PatternSignal {
	return NewPatternSignal(
		`no me interesa`,
		`no quiero`,
		`ya tengo`,
		`está muy caro|es muy caro|sale muy caro`,
		`no tengo (plata|dinero|presupuesto)`,
		`no puedo pagar`,
		`ya lo tengo|ya tengo uno`,
		`no necesito`,
		`no gracias`,
		`déjeme pensar|déjame pensar`,
		`lo consulto (con|a)`,
		`no estoy interesad[ao]`,
		`no me llame|no me vuelva a llamar`,
		`retire.*de.*base|no llame.*más`,
	)
}

const (
	agentPrefix    = "agente:"
	customerPrefix = "cliente:"
)

// DroppedCallSignal detects calls that ended before the agent could close:
// either the customer asked to leave, or the recording stops on an agent
// line with no farewell near the end. A farewell in the customer's last
// line vetoes both.
type DroppedCallSignal struct {
	busy      *PatternSignal
	farewell  *regexp.Regexp
	tailLines int
	minLines  int
}

func NewDroppedCallSignal() *DroppedCallSignal {
	return &DroppedCallSignal{
		busy: NewPatternSignal(
			`estoy (demasiado )?ocupad[ao]`,
			`no (puedo|tengo tiempo) (ahorita|ahora|en este momento)`,
			`me puede[s]? (llamar|marcar) (después|luego|más tarde|en una hora|en un rato|mañana)`,
			`llám[ae]me (después|luego|más tarde|mañana)`,
			`estoy (en el )?trabaj(o|ando)`,
			`estoy manejando`,
			`no es buen momento`,
			`no puedo hablar (ahorita|ahora|en este momento)`,
			`estoy en (una )?reuni[oó]n`,
			`llame.*más tarde|llámeme.*más tarde`,
		),
		farewell:  regexp.MustCompile(Normalize(`gracias|hasta luego|chao|adiós|bye|que (le |te )?vaya bien|fue un placer|con mucho gusto`)),
		tailLines: 5,
		minLines:  3,
	}
}

func (d *DroppedCallSignal) Detect(transcript string) bool {
	text := Normalize(transcript)
	ls := lines(text)

	wantedToLeave := d.busy.matchNormalized(text)
	abrupt := d.endedAbruptly(ls)
	if !wantedToLeave && !abrupt {
		return false
	}

	for i := len(ls) - 1; i >= 0; i-- {
		if strings.HasPrefix(ls[i], customerPrefix) {
			return !d.farewell.MatchString(ls[i])
		}
	}
	return true
}

func (d *DroppedCallSignal) endedAbruptly(ls []string) bool {
	if len(ls) < d.minLines {
		return false
	}
	tail := ls
	if len(tail) > d.tailLines {
		tail = tail[len(tail)-d.tailLines:]
	}
	if d.farewell.MatchString(strings.Join(tail, " ")) {
		return false
	}
	return strings.HasPrefix(ls[len(ls)-1], agentPrefix)
}
