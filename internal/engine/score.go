package engine

// GradedQuestion is the part of a question needed to grade it.
type GradedQuestion struct {
	ID            string
	Choices       []string
	CorrectAnswer string
}

// AnswerResult is the graded outcome for one question.
type AnswerResult struct {
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
	Correct    bool   `json:"is_correct"`
}

// Grade compares each answer against its key with exact string equality.
// A question with no answer is graded as "" and is never correct.
// Results follow the order of questions.
func Grade(questions []GradedQuestion, answers map[string]string) []AnswerResult {
	out := make([]AnswerResult, 0, len(questions))
	for _, q := range questions {
		ans := answers[q.ID]
		out = append(out, AnswerResult{
			QuestionID: q.ID,
			Answer:     ans,
			Correct:    ans != "" && ans == q.CorrectAnswer,
		})
	}
	return out
}

// Scores flattens graded results into the per-question score record.
func Scores(results []AnswerResult) []bool {
	out := make([]bool, len(results))
	for i, r := range results {
		out[i] = r.Correct
	}
	return out
}

// CountCorrect returns how many entries in scores are true.
func CountCorrect(scores []bool) int {
	n := 0
	for _, ok := range scores {
		if ok {
			n++
		}
	}
	return n
}

// ValidChoice reports whether ans is one of the question's choices.
// Questions without choices accept any answer.
func (q GradedQuestion) ValidChoice(ans string) bool {
	if len(q.Choices) == 0 {
		return true
	}
	for _, c := range q.Choices {
		if c == ans {
			return true
		}
	}
	return false
}
