package handler

import (
	"slices"

	"github.com/cuongbtq/gigmarket-be/internal/api/domain"
	"github.com/cuongbtq/gigmarket-be/internal/api/dto"
)

// Sort orders accepted by GET /applications/job/:jobId?sort=...
const (
	SortRecommended = "recommended"
	SortRank        = "rank"
	SortPriceLow    = "price-low"
	SortPriceHigh   = "price-high"
	SortSkills      = "skills"
)

// RecommendationScore favours skill breadth over price.
func RecommendationScore(skillCount int, price float64) float64 {
	return float64(skillCount)*10 - price/20
}

func skillCount(app dto.ApplicationDTO) int {
	if app.Freelancer == nil {
		return 0
	}
	return len(app.Freelancer.Skills)
}

// RankApplications reorders pending applications by the requested order
// and keeps the others after them in their original order. Unknown orders
// leave the list unchanged.
func RankApplications(apps []dto.ApplicationDTO, order string) []dto.ApplicationDTO {
	var cmp func(a, b dto.ApplicationDTO) int
	switch order {
	case SortRecommended, SortRank:
		cmp = func(a, b dto.ApplicationDTO) int {
			return compareDesc(*a.Score, *b.Score)
		}
	case SortPriceLow:
		cmp = func(a, b dto.ApplicationDTO) int { return compareDesc(b.Price, a.Price) }
	case SortPriceHigh:
		cmp = func(a, b dto.ApplicationDTO) int { return compareDesc(a.Price, b.Price) }
	case SortSkills:
		cmp = func(a, b dto.ApplicationDTO) int {
			return compareDesc(float64(skillCount(a)), float64(skillCount(b)))
		}
	default:
		return apps
	}

	pending := make([]dto.ApplicationDTO, 0, len(apps))
	others := make([]dto.ApplicationDTO, 0, len(apps))
	for _, app := range apps {
		if app.Status != string(domain.ApplicationStatusPending) {
			others = append(others, app)
			continue
		}
		if order == SortRecommended || order == SortRank {
			score := RecommendationScore(skillCount(app), app.Price)
			app.Score = &score
		}
		pending = append(pending, app)
	}

	slices.SortStableFunc(pending, cmp)
	return append(pending, others...)
}

// compareDesc sorts larger values first.
func compareDesc(a, b float64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	default:
		return 0
	}
}
