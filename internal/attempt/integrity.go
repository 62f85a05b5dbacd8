package attempt

// Post-hoc heuristics over a finalized submission. Flags are recorded for
// human review and never block or alter a result: a legitimately fast test
// taker must not be punished by a heuristic.

type IntegritySample struct {
	ElapsedSecs   int64
	QuestionCount int
	// ChoiceLabels holds the chosen labels in question display order;
	// unanswered questions contribute nothing.
	ChoiceLabels []string
}

type integrityDetector struct {
	flag   string
	detect func(IntegritySample) bool
}

// Detectors are independent pure functions; adding a heuristic means adding a
// row here, not touching the submission pipeline.
var integrityDetectors = []integrityDetector{
	{flag: "fast completion", detect: detectFastCompletion},
	{flag: "uniform answer pattern", detect: detectUniformPattern},
	{flag: "sequential answer pattern", detect: detectSequentialPattern},
}

func IntegrityFlags(sample IntegritySample) []string {
	flags := make([]string, 0)
	for _, d := range integrityDetectors {
		if d.detect(sample) {
			flags = append(flags, d.flag)
		}
	}
	return flags
}

func detectFastCompletion(s IntegritySample) bool {
	if s.QuestionCount <= 0 {
		return false
	}
	return s.ElapsedSecs < int64(s.QuestionCount)*5
}

func detectUniformPattern(s IntegritySample) bool {
	if s.QuestionCount <= 3 || len(s.ChoiceLabels) == 0 {
		return false
	}
	first := s.ChoiceLabels[0]
	for _, label := range s.ChoiceLabels[1:] {
		if label != first {
			return false
		}
	}
	return true
}

// detectSequentialPattern matches a strict rotation through the label
// alphabet: A, B, C, D, E, A, B, ...
func detectSequentialPattern(s IntegritySample) bool {
	if s.QuestionCount <= 4 || len(s.ChoiceLabels) < 2 {
		return false
	}
	for i, label := range s.ChoiceLabels {
		if len(label) != 1 || label[0] < 'A' || label[0] > 'E' {
			return false
		}
		if i == 0 {
			continue
		}
		if label != nextLabel(s.ChoiceLabels[i-1]) {
			return false
		}
	}
	return true
}

func nextLabel(label string) string {
	if label == "E" {
		return "A"
	}
	return string(label[0] + 1)
}
