package handler

import (
	"testing"

	"github.com/cuongbtq/gigmarket-be/internal/api/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecommendationScore(t *testing.T) {
	assert.Equal(t, 10.0, RecommendationScore(3, 400))
	assert.Equal(t, -5.0, RecommendationScore(0, 100))
}

func TestRankApplications(t *testing.T) {
	withSkills := func(n int) *dto.UserDTO {
		return &dto.UserDTO{Skills: make([]string, n)}
	}

	apps := func() []dto.ApplicationDTO {
		return []dto.ApplicationDTO{
			{ID: "cheap-novice", Status: "pending", Price: 100, Freelancer: withSkills(0)},
			{ID: "rejected", Status: "rejected", Price: 50, Freelancer: withSkills(9)},
			{ID: "pricey-expert", Status: "pending", Price: 600, Freelancer: withSkills(5)},
			{ID: "no-profile", Status: "pending", Price: 300},
			{ID: "mid", Status: "pending", Price: 200, Freelancer: withSkills(2)},
		}
	}

	ids := func(list []dto.ApplicationDTO) []string {
		out := make([]string, len(list))
		for i, a := range list {
			out[i] = a.ID
		}
		return out
	}

	tests := []struct {
		name  string
		order string
		want  []string
	}{
		{
			name:  "recommended",
			order: SortRecommended,
			want:  []string{"pricey-expert", "mid", "cheap-novice", "no-profile", "rejected"},
		},
		{
			name:  "rank alias",
			order: SortRank,
			want:  []string{"pricey-expert", "mid", "cheap-novice", "no-profile", "rejected"},
		},
		{
			name:  "price low",
			order: SortPriceLow,
			want:  []string{"cheap-novice", "mid", "no-profile", "pricey-expert", "rejected"},
		},
		{
			name:  "price high",
			order: SortPriceHigh,
			want:  []string{"pricey-expert", "no-profile", "mid", "cheap-novice", "rejected"},
		},
		{
			name:  "skills",
			order: SortSkills,
			want:  []string{"pricey-expert", "mid", "cheap-novice", "no-profile", "rejected"},
		},
		{
			name:  "unknown order keeps input order",
			order: "",
			want:  []string{"cheap-novice", "rejected", "pricey-expert", "no-profile", "mid"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranked := RankApplications(apps(), tt.order)
			assert.Equal(t, tt.want, ids(ranked))
		})
	}

	t.Run("scores only on pending applications", func(t *testing.T) {
		ranked := RankApplications(apps(), SortRecommended)
		require.NotNil(t, ranked[0].Score)
		assert.Equal(t, 20.0, *ranked[0].Score)
		assert.Nil(t, ranked[4].Score)
	})
}
