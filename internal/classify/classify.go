// Package classify assigns Persian legal questions to a legal domain by
// keyword scoring. The domain steers retrieval filtering and the answer's
// domain label.
package classify

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/dadras-ai/dadras/internal/cache"
)

// Domain identifiers. Unknown questions get the general label.
const (
	DomainCriminal   = "criminal"
	DomainCivil      = "civil"
	DomainFamily     = "family"
	DomainCommercial = "commercial"
	DomainUnknown    = "unknown"
)

type domainProfile struct {
	keywords []string
	label    string
}

var domains = map[string]domainProfile{
	DomainCriminal: {
		keywords: []string{
			"جرم", "مجازات", "زندان", "حبس", "جزا", "کیفر",
			"دعوای کیفری", "دادگاه کیفری", "دادستان", "شکایت کیفری",
			"قتل", "سرقت", "کلاهبرداری", "خیانت", "توهین", "ضرب و جرح",
		},
		label: "کیفری",
	},
	DomainCivil: {
		keywords: []string{
			"حقوق مدنی", "عقد", "قرارداد", "خرید و فروش", "اجاره",
			"ملک", "ارث", "وصیت", "ضمان", "کفالت", "رهن",
			"عقد نکاح", "طلاق", "نفقه", "مهریه",
		},
		label: "مدنی",
	},
	DomainFamily: {
		keywords: []string{
			"خانواده", "ازدواج", "طلاق", "نفقه", "مهریه", "حضانت",
			"ولایت", "نسب", "عقد نکاح", "صیغه", "عده", "نشوز", "شیربها",
		},
		label: "خانواده",
	},
	DomainCommercial: {
		keywords: []string{
			"تجاری", "شرکت", "سهامی", "با مسئولیت محدود", "سفته",
			"برات", "چک", "اسناد تجاری", "ورشکستگی", "تجارت",
			"بازرگانی", "قرارداد تجاری",
		},
		label: "تجاری",
	},
}

// Result is a classified question: the winning domain and a confidence in
// [0, 1], the fraction of that domain's keywords the question contains.
type Result struct {
	Domain     string  `json:"domain"`
	Confidence float64 `json:"confidence"`
}

// Label returns the Persian label for a domain; unknown domains get the
// general label.
func Label(domain string) string {
	if p, ok := domains[domain]; ok {
		return p.label
	}
	return "عمومی"
}

// Classify scores the question against every domain's keyword list and
// returns the best match. Questions matching no keywords are unknown with
// zero confidence.
func Classify(question string) Result {
	lower := strings.ToLower(question)

	best := Result{Domain: DomainUnknown}
	for domain, p := range domains {
		matched := 0
		for _, kw := range p.keywords {
			if strings.Contains(lower, kw) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		confidence := float64(matched) / float64(len(p.keywords))
		if confidence > best.Confidence || (confidence == best.Confidence && domain < best.Domain) {
			best = Result{Domain: domain, Confidence: confidence}
		}
	}
	return best
}

// Classifier memoises classifications in the result cache.
type Classifier struct {
	cache cache.Cache
	ttl   time.Duration
}

// NewClassifier creates a classifier backed by c. A nil-behaving cache
// (cache.Noop) disables memoisation.
func NewClassifier(c cache.Cache, ttl time.Duration) *Classifier {
	return &Classifier{cache: c, ttl: ttl}
}

// Classify returns the cached classification when present, otherwise
// classifies and stores the result.
func (c *Classifier) Classify(ctx context.Context, question string) Result {
	key := cache.ClassificationKey(question)
	if payload, ok := c.cache.Get(ctx, key); ok {
		var cached Result
		if err := json.Unmarshal(payload, &cached); err == nil {
			return cached
		}
	}

	result := Classify(question)
	if payload, err := json.Marshal(result); err == nil {
		c.cache.Set(ctx, key, payload, c.ttl)
	}
	return result
}
