package query

import (
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrInvalidPage is returned for negative page or limit values.
var ErrInvalidPage = errors.New("page and limit must not be negative")

// Plan is the two-stage content query: match nodes, unwind their language
// records, match the records, then sort, optionally paginate and project.
// Projection runs last so it never drops the sort keys. Rows are flattened
// with the language record winning on key collision.
type Plan struct {
	Match         bson.M
	LanguageMatch bson.M
	Project       bson.M
	Sort          bson.D
	Page          int64
	Limit         int64
}

// Build translates a flat filter, projection and sort into a Plan.
// Pagination applies when both page and limit are positive; a paginated
// plan is always sorted.
func Build(filter bson.M, project interface{}, sort interface{}, page, limit int64) (Plan, error) {
	if page < 0 || limit < 0 {
		return Plan{}, ErrInvalidPage
	}

	match, err := ContentFilter(filter)
	if err != nil {
		return Plan{}, err
	}
	projection, err := Projection(project)
	if err != nil {
		return Plan{}, fmt.Errorf("projection: %w", err)
	}

	p := Plan{
		Match:         match,
		LanguageMatch: LanguageFilter(filter),
		Project:       projection,
		Page:          page,
		Limit:         limit,
	}

	if p.Paginated() || !emptySort(sort) {
		p.Sort, err = CombineSort(sort)
		if err != nil {
			return Plan{}, fmt.Errorf("sort: %w", err)
		}
	}
	return p, nil
}

func emptySort(sort interface{}) bool {
	switch t := sort.(type) {
	case nil:
		return true
	case string:
		return len(splitFields(t)) == 0
	}
	return false
}

// Paginated reports whether the plan returns a single page with totals.
func (p Plan) Paginated() bool {
	return p.Page > 0 && p.Limit > 0
}

// Skip is the number of rows before the requested page.
func (p Plan) Skip() int64 {
	if !p.Paginated() {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Pipeline renders the plan as a MongoDB aggregation pipeline.
func (p Plan) Pipeline() mongo.Pipeline {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: orEmpty(p.Match)}},
		{{Key: "$unwind", Value: "$" + LanguagesField}},
		{{Key: "$match", Value: orEmpty(p.LanguageMatch)}},
	}

	flatten := bson.M{"$replaceRoot": bson.M{
		"newRoot": bson.M{"$mergeObjects": bson.A{"$$ROOT", "$" + LanguagesField}},
	}}
	strip := bson.M{"$project": bson.M{LanguagesField: 0}}

	if !p.Paginated() {
		if len(p.Sort) > 0 {
			pipeline = append(pipeline, bson.D{{Key: "$sort", Value: p.Sort}})
		}
		if len(p.Project) > 0 {
			pipeline = append(pipeline, bson.D{{Key: "$project", Value: p.Project}})
		}
		return append(pipeline,
			bson.D{{Key: "$replaceRoot", Value: flatten["$replaceRoot"]}},
			bson.D{{Key: "$project", Value: strip["$project"]}},
		)
	}

	docs := bson.A{
		bson.M{"$sort": p.Sort},
		bson.M{"$skip": p.Skip()},
		bson.M{"$limit": p.Limit},
	}
	if len(p.Project) > 0 {
		docs = append(docs, bson.M{"$project": p.Project})
	}
	docs = append(docs, flatten, strip)

	return append(pipeline,
		bson.D{{Key: "$facet", Value: bson.M{
			"metadata": bson.A{bson.M{"$count": "total"}},
			"docs":     docs,
		}}},
		bson.D{{Key: "$unwind", Value: "$metadata"}},
		bson.D{{Key: "$project", Value: bson.M{
			"docs":  1,
			"total": "$metadata.total",
			"pages": bson.M{"$ceil": bson.M{"$divide": bson.A{"$metadata.total", p.Limit}}},
		}}},
	)
}

func orEmpty(m bson.M) bson.M {
	if m == nil {
		return bson.M{}
	}
	return m
}

// Pagination describes one page of a paginated query.
type Pagination struct {
	Total int64 `json:"total" bson:"total"`
	Pages int64 `json:"pages" bson:"pages"`
	Page  int64 `json:"page" bson:"page"`
	Limit int64 `json:"limit" bson:"limit"`
}

// Result is the output of a content query. Pagination is nil for
// non-paginated queries.
type Result struct {
	Docs []bson.M `json:"docs"`
	*Pagination
}

// Pages returns the number of pages needed for total rows.
func Pages(total, limit int64) int64 {
	if limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// NewPage assembles a paginated result.
func NewPage(p Plan, docs []bson.M, total int64) *Result {
	if docs == nil {
		docs = []bson.M{}
	}
	return &Result{
		Docs: docs,
		Pagination: &Pagination{
			Total: total,
			Pages: Pages(total, p.Limit),
			Page:  p.Page,
			Limit: p.Limit,
		},
	}
}
