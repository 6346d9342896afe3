// Package captable defines the cap table data model shared by the ownership,
// round modeling, waterfall, and portfolio packages, together with the
// invariant checks that guard it.
//
// Holdings reference shareholders and rounds by identifier only. Any "who owns
// what" view is produced by a grouping pass over the flat holdings list.
package captable

// ShareholderType classifies a shareholder.
type ShareholderType string

// Shareholder types.
const (
	ShareholderFounder    ShareholderType = "founder"
	ShareholderFund       ShareholderType = "fund"
	ShareholderAngel      ShareholderType = "angel"
	ShareholderEmployee   ShareholderType = "employee"
	ShareholderOptionPool ShareholderType = "option-pool"
)

// Shareholder is an owner of equity. Identity is immutable once created.
type Shareholder struct {
	ID   string          `json:"id" yaml:"id"`
	Name string          `json:"name" yaml:"name"`
	Type ShareholderType `json:"type" yaml:"type"`
}

// Holding is one shareholder's position in one share class. OwnershipPct is
// always derived from Shares and the cap table total; see RecomputeOwnership.
type Holding struct {
	ShareholderID    string  `json:"shareholderId" yaml:"shareholderId"`
	ShareClass       string  `json:"shareClass" yaml:"shareClass"`
	Shares           int64   `json:"shares" yaml:"shares"`
	OwnershipPct     float64 `json:"ownershipPct" yaml:"ownershipPct"`
	InvestmentAmount float64 `json:"investmentAmount" yaml:"investmentAmount"`
}

// LiquidationPref describes the exit rights of one preferred share class.
// A nil ParticipationCap means participation is uncapped; otherwise total
// proceeds to the class are capped at invested * cap.
type LiquidationPref struct {
	ShareClass       string   `json:"shareClass" yaml:"shareClass"`
	Multiple         float64  `json:"multiple" yaml:"multiple"`
	Participating    bool     `json:"participating" yaml:"participating"`
	ParticipationCap *float64 `json:"participationCap" yaml:"participationCap"`
}

// RoundInvestor is one investor's allocation within a funding round.
type RoundInvestor struct {
	ShareholderID string  `json:"shareholderId" yaml:"shareholderId"`
	Amount        float64 `json:"amount" yaml:"amount"`
	Shares        int64   `json:"shares" yaml:"shares"`
}

// FundingRound is a priced financing event. PostMoney is always
// PreMoney + RoundSize.
type FundingRound struct {
	ID                    string          `json:"id" yaml:"id"`
	CompanyID             string          `json:"companyId" yaml:"companyId"`
	Name                  string          `json:"name" yaml:"name"`
	Date                  string          `json:"date" yaml:"date"`
	PreMoney              float64         `json:"preMoney" yaml:"preMoney"`
	RoundSize             float64         `json:"roundSize" yaml:"roundSize"`
	PostMoney             float64         `json:"postMoney" yaml:"postMoney"`
	SharePrice            float64         `json:"sharePrice" yaml:"sharePrice"`
	LeadInvestor          string          `json:"leadInvestor" yaml:"leadInvestor"`
	Investors             []RoundInvestor `json:"investors" yaml:"investors"`
	FounderOwnershipAfter float64         `json:"founderOwnershipAfter" yaml:"founderOwnershipAfter"`
}

// CapTable is the aggregate root: the full ownership snapshot of one company.
// The sum of Holdings[].Shares must equal TotalShares.
type CapTable struct {
	CompanyID        string            `json:"companyId" yaml:"companyId"`
	Shareholders     []Shareholder     `json:"shareholders" yaml:"shareholders"`
	Holdings         []Holding         `json:"holdings" yaml:"holdings"`
	Rounds           []FundingRound    `json:"rounds" yaml:"rounds"`
	LiquidationPrefs []LiquidationPref `json:"liquidationPrefs" yaml:"liquidationPrefs"`
	TotalShares      int64             `json:"totalShares" yaml:"totalShares"`
}

// Fund identifies the shareholder whose returns are tracked separately.
type Fund struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Clone returns a deep copy of the cap table. Nothing in the copy aliases the
// receiver's slices or pointers.
func (ct CapTable) Clone() CapTable {
	out := ct
	out.Shareholders = append([]Shareholder(nil), ct.Shareholders...)
	out.Holdings = append([]Holding(nil), ct.Holdings...)
	out.Rounds = make([]FundingRound, len(ct.Rounds))
	for i, r := range ct.Rounds {
		r.Investors = append([]RoundInvestor(nil), r.Investors...)
		out.Rounds[i] = r
	}
	out.LiquidationPrefs = make([]LiquidationPref, len(ct.LiquidationPrefs))
	for i, lp := range ct.LiquidationPrefs {
		if lp.ParticipationCap != nil {
			capValue := *lp.ParticipationCap
			lp.ParticipationCap = &capValue
		}
		out.LiquidationPrefs[i] = lp
	}
	return out
}

// Shareholder looks up a shareholder by id.
func (ct CapTable) Shareholder(id string) (Shareholder, bool) {
	for _, s := range ct.Shareholders {
		if s.ID == id {
			return s, true
		}
	}
	return Shareholder{}, false
}

// Pref returns the liquidation preference recorded for a share class.
func (ct CapTable) Pref(shareClass string) (LiquidationPref, bool) {
	for _, lp := range ct.LiquidationPrefs {
		if lp.ShareClass == shareClass {
			return lp, true
		}
	}
	return LiquidationPref{}, false
}

// LastRound returns the most recent round in recorded order.
func (ct CapTable) LastRound() (FundingRound, bool) {
	if len(ct.Rounds) == 0 {
		return FundingRound{}, false
	}
	return ct.Rounds[len(ct.Rounds)-1], true
}

// HoldingsOf returns the holdings of one shareholder across all classes.
func (ct CapTable) HoldingsOf(shareholderID string) []Holding {
	var out []Holding
	for _, h := range ct.Holdings {
		if h.ShareholderID == shareholderID {
			out = append(out, h)
		}
	}
	return out
}

// ClassShares sums the shares held in one class.
func (ct CapTable) ClassShares(shareClass string) int64 {
	var total int64
	for _, h := range ct.Holdings {
		if h.ShareClass == shareClass {
			total += h.Shares
		}
	}
	return total
}

// HeldShares sums the shares across all holdings.
func (ct CapTable) HeldShares() int64 {
	var total int64
	for _, h := range ct.Holdings {
		total += h.Shares
	}
	return total
}
