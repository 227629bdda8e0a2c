package auth

import "github.com/hitoshi/matchday/internal/model"

// Outcome は認可コード交換の結果の種別。
type Outcome int

const (
	// OutcomeSuccess はユーザーの解決まで完了したことを示す。
	OutcomeSuccess Outcome = iota + 1
	// OutcomeNoPrincipal は交換は完了したがユーザーを特定できなかったことを示す。
	OutcomeNoPrincipal
	// OutcomeError は交換またはユーザーの解決に失敗したことを示す。
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeNoPrincipal:
		return "no_principal"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// ExchangeResult は認可コード交換の結果。
// UserはOutcomeSuccessの場合のみ設定され、Errはそれ以外の場合に設定される。
type ExchangeResult struct {
	Outcome Outcome
	User    *model.User
	Err     error
}

func successResult(user *model.User) ExchangeResult {
	return ExchangeResult{Outcome: OutcomeSuccess, User: user}
}

func noPrincipalResult() ExchangeResult {
	return ExchangeResult{Outcome: OutcomeNoPrincipal, Err: model.ErrNoPrincipal}
}

func errorResult(err error) ExchangeResult {
	return ExchangeResult{Outcome: OutcomeError, Err: err}
}
