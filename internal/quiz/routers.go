package quiz

// entryNode picks where an invocation starts.
func entryNode(st State) NodeID {
	switch {
	case st.Fresh():
		return NodeInitialize
	case st.QuizComplete:
		return NodeRecordResult
	default:
		return NodeShouldEvaluate
	}
}

// shouldEvaluate decides whether there is an answer to grade or whether the
// invocation should pause for one.
func shouldEvaluate(st State) NodeID {
	switch {
	case st.ErrorMessage != "":
		return NodeRecordResult
	case st.UserAnswer != nil:
		return NodeEvaluateAnswer
	// Any freshly generated question pauses, not only the first of a
	// session, so a fully answered round stops at exactly QuizLength.
	case len(st.QuestionsAsked) == len(st.AnswersGiven)+1:
		return NodeEndInitialInvocation
	default:
		return NodeRejectInconsistent
	}
}

// routeAfterEvaluation chooses between a retry round, finishing and the
// next question, in that priority after an error check.
func routeAfterEvaluation(st State, cfg Config) NodeID {
	if st.ErrorMessage != "" {
		return NodeRecordResult
	}

	if n := len(st.AnswersGiven); n > 0 &&
		!st.AnswersGiven[n-1].IsCorrect &&
		len(st.IncorrectSubtopics) > 0 &&
		st.RetryCount < cfg.RetryCap {
		return NodeGenerateRetryQuiz
	}

	if st.CurrentQuestionIndex >= cfg.QuizLength {
		return NodeRecordResult
	}

	return NodeGenerateQuestion
}
