// internal/server/tools.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"go.uber.org/zap"

	"mcp-diet-opt/internal/constraints"
	"mcp-diet-opt/internal/models"
	"mcp-diet-opt/internal/optimizer"
	"mcp-diet-opt/internal/report"
)

var errInvalidParams = errors.New("invalid parameters")

type ListFoodsParams struct {
	ActiveOnly bool `json:"active_only" description:"Only list foods in the active set"`
}

type SetActiveFoodsParams struct {
	FoodIDs []int64 `json:"food_ids" description:"Food IDs that replace the active set"`
}

type ApplyRestrictionsParams struct {
	Restrictions []string `json:"restrictions" description:"Flags every active food must have, e.g. vegan, gluten_free"`
}

type SetFoodPriceParams struct {
	FoodID       int64    `json:"food_id" description:"Food to reprice"`
	PricePer100g *float64 `json:"price_per_100_g,omitempty" description:"New price per 100 g"`

	// Alternatively, a package price and weight.
	PackagePrice  *float64 `json:"package_price,omitempty" description:"Price paid for a package"`
	PackageWeight float64  `json:"package_weight,omitempty" description:"Weight of the package"`
	WeightUnit    string   `json:"weight_unit,omitempty" description:"g, kg, lb, oz or mg"`
}

type OptimizeParams struct {
	FoodIDs        []int64             `json:"food_ids,omitempty" description:"Foods to optimize over (defaults to the active set)"`
	PriceOverrides map[int64]float64   `json:"price_overrides,omitempty" description:"Price per 100 g for this run only, keyed by food ID"`
	MinAmounts     map[int64]float64   `json:"min_amounts,omitempty" description:"Minimum grams per food, keyed by food ID"`
	Sex            string              `json:"age_sex,omitempty" description:"child, female or male"`
	AgeRange       string              `json:"age_range,omitempty" description:"Age range such as 19-30"`
	Constraints    []constraints.Entry `json:"constraints,omitempty" description:"Constraints for this run (defaults to the loaded set)"`
	ShowAll        bool                `json:"show_all_shadow_prices,omitempty" description:"Include zero shadow prices"`
}

type GetResultsParams struct {
	Run     *int `json:"run,omitempty" description:"Run index (defaults to the latest)"`
	ShowAll bool `json:"show_all_shadow_prices,omitempty" description:"Include zero shadow prices"`
}

type ListRunsParams struct {
	Limit int `json:"limit,omitempty" description:"Maximum number of runs to return"`
}

// FoodView is a catalog food as listed by list_foods.
type FoodView struct {
	ID           int64               `json:"fdc_id"`
	Name         string              `json:"food_name"`
	PricePer100g *float64            `json:"price_per_100_g"`
	Active       bool                `json:"active"`
	Restrictions models.Restrictions `json:"restrictions"`
}

// extractParams safely extracts parameters from the request arguments
func extractParams(req *protocol.CallToolRequest, target interface{}) error {
	// Convert the Arguments map to JSON bytes, then unmarshal to target
	jsonBytes, err := json.Marshal(req.Arguments)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal arguments: %v", errInvalidParams, err)
	}

	if err := json.Unmarshal(jsonBytes, target); err != nil {
		return fmt.Errorf("%w: %v", errInvalidParams, err)
	}

	return nil
}

func (s *DietServer) handleListFoods(_ context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params ListFoodsParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}

	pantry := s.data.Pantry
	ids := pantry.IDs()
	if params.ActiveOnly {
		ids = pantry.ActiveIDs()
	}

	foods := make([]FoodView, 0, len(ids))
	for _, id := range ids {
		food, err := pantry.Get(id)
		if err != nil {
			return nil, err
		}
		foods = append(foods, FoodView{
			ID:           food.ID,
			Name:         food.Name,
			PricePer100g: food.PricePer100g,
			Active:       pantry.IsActive(id),
			Restrictions: food.Restrictions,
		})
	}
	return s.createJSONResponse(foods)
}

func (s *DietServer) handleSetActiveFoods(_ context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params SetActiveFoodsParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}

	if err := s.data.Pantry.SetActive(params.FoodIDs...); err != nil {
		return nil, err
	}
	return s.createJSONResponse(map[string]interface{}{
		"active": s.data.Pantry.ActiveIDs(),
	})
}

func (s *DietServer) handleApplyRestrictions(_ context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params ApplyRestrictionsParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}

	required := make([]models.Restriction, 0, len(params.Restrictions))
	for _, name := range params.Restrictions {
		r, err := models.ParseRestriction(name)
		if err != nil {
			return nil, err
		}
		required = append(required, r)
	}

	removed := s.data.Pantry.ApplyRestrictions(required...)
	return s.createJSONResponse(map[string]interface{}{
		"removed": removed,
		"active":  s.data.Pantry.ActiveIDs(),
	})
}

func (s *DietServer) handleSetFoodPrice(_ context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params SetFoodPriceParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}

	var price float64
	switch {
	case params.PricePer100g != nil && params.PackagePrice != nil:
		return nil, fmt.Errorf("%w: give either price_per_100_g or package_price", errInvalidParams)
	case params.PricePer100g != nil:
		price = *params.PricePer100g
	case params.PackagePrice != nil:
		unit, err := models.ParseWeightUnit(params.WeightUnit)
		if err != nil {
			return nil, err
		}
		if price, err = models.PriceFromPurchase(*params.PackagePrice, params.PackageWeight, unit); err != nil {
			return nil, fmt.Errorf("%w: %v", errInvalidParams, err)
		}
	default:
		return nil, fmt.Errorf("%w: price_per_100_g or package_price is required", errInvalidParams)
	}

	if err := s.data.Pantry.SetPrice(params.FoodID, price); err != nil {
		return nil, err
	}
	food, err := s.data.Pantry.Get(params.FoodID)
	if err != nil {
		return nil, err
	}
	if err := s.storage.SaveFood(food); err != nil {
		s.logger.Warn("Failed to persist price", zap.Int64("food_id", food.ID), zap.Error(err))
	}
	return s.createJSONResponse(map[string]interface{}{
		"fdc_id":          food.ID,
		"food_name":       food.Name,
		"price_per_100_g": price,
	})
}

func (s *DietServer) handleOptimize(ctx context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params OptimizeParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}

	var demographic *models.Demographic
	if d := (models.Demographic{Sex: params.Sex, AgeRange: params.AgeRange}); !d.IsZero() {
		if !d.Valid() {
			return nil, fmt.Errorf("%w: unknown demographic %q", errInvalidParams, d.String())
		}
		demographic = &d
	}

	var set *constraints.Set
	if params.Constraints != nil {
		set = constraints.NewSet()
		if demographic == nil {
			demographic = s.data.Demographic
		}
		if err := set.LoadEntries(params.Constraints, demographic); err != nil {
			return nil, err
		}
	} else {
		var err error
		if set, err = s.data.Constraints(demographic); err != nil {
			return nil, err
		}
	}

	run, err := s.optimizer.Optimize(ctx, s.data.Pantry, optimizer.Request{
		ActiveIDs:      params.FoodIDs,
		PriceOverrides: params.PriceOverrides,
		MinAmounts:     params.MinAmounts,
		Constraints:    set,
	})
	if run != nil {
		if serr := s.storage.SaveRun(run); serr != nil {
			s.logger.Warn("Failed to persist run", zap.Int("run", run.Index), zap.Error(serr))
		}
	}
	if err != nil {
		return nil, err
	}

	return s.createJSONResponse(report.Build(run, s.data.Nutrients, params.ShowAll))
}

func (s *DietServer) handleGetResults(_ context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params GetResultsParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}

	var run *optimizer.Run
	var err error
	if params.Run != nil {
		run, err = s.optimizer.Run(*params.Run)
	} else {
		run, err = s.optimizer.Latest()
	}
	if err != nil {
		return nil, err
	}
	return s.createJSONResponse(report.Build(run, s.data.Nutrients, params.ShowAll))
}

func (s *DietServer) handleListRuns(_ context.Context, req *protocol.CallToolRequest) (*protocol.CallToolResult, error) {
	var params ListRunsParams
	if err := extractParams(req, &params); err != nil {
		return nil, err
	}

	if params.Limit <= 0 {
		params.Limit = 20
	}

	runs, err := s.storage.ListRuns(params.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve runs: %w", err)
	}
	return s.createJSONResponse(runs)
}

func (s *DietServer) registerTools() {
	s.tools = map[string]toolHandler{
		"list_foods":         s.handleListFoods,
		"set_active_foods":   s.handleSetActiveFoods,
		"apply_restrictions": s.handleApplyRestrictions,
		"set_food_price":     s.handleSetFoodPrice,
		"optimize":           s.handleOptimize,
		"get_results":        s.handleGetResults,
		"list_runs":          s.handleListRuns,
	}

	for name := range s.tools {
		s.logger.Debug("Registered tool", zap.String("tool", name))
	}
}
