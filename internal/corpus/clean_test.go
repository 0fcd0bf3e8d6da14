package corpus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeWhitespace_CollapsesRuns(t *testing.T) {
	in := "Beta  blockers\t\treduce   heart rate.\n\n\n\nSecond paragraph.\r\nThird line."
	out := NormalizeWhitespace(in)

	assert.NotContains(t, out, "  ")
	assert.NotContains(t, out, "\t")
	assert.NotContains(t, out, "\r")
	assert.NotContains(t, out, "\n\n\n")
	assert.Contains(t, out, "Beta blockers reduce heart rate.")
}

func TestRemoveHeadersFooters_DropsPageFurniture(t *testing.T) {
	in := "Hypertension is common.\nThe Merck Manual of Diagnosis\nCopyright 2011\nTreatment follows."
	out := RemoveHeadersFooters(in)

	assert.NotContains(t, out, "Merck Manual")
	assert.NotContains(t, out, "Copyright")
	assert.Contains(t, out, "Hypertension is common.")
	assert.Contains(t, out, "Treatment follows.")
}

func TestRemoveStructuralNoise_StripsReferences(t *testing.T) {
	in := "Diagnosis is clinical [Table 12-3] and confirmed (see p. 412).\n123\nNext sentence."
	out := RemoveStructuralNoise(in)

	assert.NotContains(t, out, "Table 12-3")
	assert.NotContains(t, out, "see p.")
	assert.NotContains(t, out, "\n123\n")
	assert.Contains(t, out, "Diagnosis is clinical")
}

func TestRemoveStructuralNoise_KeepsClinicalNumbers(t *testing.T) {
	in := "Give 25 mg twice daily."
	assert.Equal(t, in, RemoveStructuralNoise(in))
}

func TestFixLineBreaks_RepairsHyphenationAndSentences(t *testing.T) {
	// Hyphenated split rejoins into one word
	assert.Equal(t, "hypertension", FixLineBreaks("hyper-\ntension"))

	// Broken sentence merges when the next line starts lowercase
	assert.Equal(t, "blood pressure rises", FixLineBreaks("blood pressure\nrises"))

	// Headings after a period stay on their own line
	in := "Treatment ends here.\nDiagnosis"
	assert.Equal(t, in, FixLineBreaks(in))
}

func TestCleanText_FullPipeline(t *testing.T) {
	in := "The Merck Manual\nHypertension is sus-\ntained elevation of blood pressure [See Table 1].\n\n\n\nTreatment  reduces   risk."
	out := CleanText(in)

	assert.NotContains(t, out, "Merck Manual")
	assert.Contains(t, out, "sustained")
	assert.NotContains(t, out, "[See Table 1]")
	assert.Contains(t, out, "Treatment reduces risk.")
}
