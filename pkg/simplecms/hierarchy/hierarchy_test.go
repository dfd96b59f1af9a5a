package hierarchy_test

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms/hierarchy"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func nodeUnder(parent *hierarchy.Node) hierarchy.Node {
	p := hierarchy.Place(parent)
	return hierarchy.Node{
		ID:         primitive.NewObjectID(),
		ParentID:   p.ParentID,
		ParentPath: p.ParentPath,
		Ancestors:  p.Ancestors,
	}
}

func TestPlace(t *testing.T) {
	t.Run("Root", func(t *testing.T) {
		p := hierarchy.Place(nil)
		assert.Nil(t, p.ParentID)
		assert.Equal(t, "", p.ParentPath)
		assert.NotNil(t, p.Ancestors)
		assert.Empty(t, p.Ancestors)
	})

	t.Run("ChildOfRoot", func(t *testing.T) {
		root := nodeUnder(nil)
		p := hierarchy.Place(&root)
		require.NotNil(t, p.ParentID)
		assert.Equal(t, root.ID, *p.ParentID)
		assert.Equal(t, ","+root.ID.Hex()+",", p.ParentPath)
		assert.Equal(t, []primitive.ObjectID{root.ID}, p.Ancestors)
	})

	t.Run("Grandchild", func(t *testing.T) {
		root := nodeUnder(nil)
		child := nodeUnder(&root)
		p := hierarchy.Place(&child)

		assert.Equal(t, child.ParentPath+child.ID.Hex()+",", p.ParentPath)
		assert.Equal(t, append(append([]primitive.ObjectID{}, child.Ancestors...), child.ID), p.Ancestors)
		assert.Equal(t, hierarchy.PathOf(p.Ancestors), p.ParentPath)
	})

	t.Run("DoesNotAliasParentAncestors", func(t *testing.T) {
		root := nodeUnder(nil)
		child := nodeUnder(&root)
		p := hierarchy.Place(&child)
		p.Ancestors[0] = primitive.NewObjectID()
		assert.Equal(t, root.ID, child.Ancestors[0])
	})
}

func TestSubtreePattern(t *testing.T) {
	root := nodeUnder(nil)
	child := nodeUnder(&root)
	grandchild := nodeUnder(&child)
	sibling := nodeUnder(nil)
	siblingChild := nodeUnder(&sibling)

	re := regexp.MustCompile(hierarchy.SubtreePattern(root))
	assert.True(t, re.MatchString(child.ParentPath))
	assert.True(t, re.MatchString(grandchild.ParentPath))
	assert.False(t, re.MatchString(root.ParentPath))
	assert.False(t, re.MatchString(siblingChild.ParentPath))

	nested := regexp.MustCompile(hierarchy.SubtreePattern(child))
	assert.True(t, nested.MatchString(grandchild.ParentPath))
	assert.False(t, nested.MatchString(child.ParentPath))
}

func TestIsInSubtree(t *testing.T) {
	root := nodeUnder(nil)
	child := nodeUnder(&root)
	grandchild := nodeUnder(&child)
	other := nodeUnder(nil)

	assert.True(t, hierarchy.IsInSubtree(root, root))
	assert.True(t, hierarchy.IsInSubtree(root, child))
	assert.True(t, hierarchy.IsInSubtree(root, grandchild))
	assert.False(t, hierarchy.IsInSubtree(child, root))
	assert.False(t, hierarchy.IsInSubtree(root, other))
}

func TestParsePath(t *testing.T) {
	a, b := primitive.NewObjectID(), primitive.NewObjectID()

	ids, err := hierarchy.ParsePath("," + a.Hex() + "," + b.Hex() + ",")
	require.NoError(t, err)
	assert.Equal(t, []primitive.ObjectID{a, b}, ids)

	ids, err = hierarchy.ParsePath("")
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = hierarchy.ParsePath(",not-an-id,")
	assert.Error(t, err)
}

func TestRelocate(t *testing.T) {
	// a -> b -> c -> d, move b under x -> y
	a := nodeUnder(nil)
	b := nodeUnder(&a)
	c := nodeUnder(&b)
	d := nodeUnder(&c)
	x := nodeUnder(nil)
	y := nodeUnder(&x)

	moved := b
	p := hierarchy.Place(&y)
	moved.ParentID, moved.ParentPath, moved.Ancestors = p.ParentID, p.ParentPath, p.Ancestors

	t.Run("DirectChild", func(t *testing.T) {
		got, err := hierarchy.Relocate(moved, c)
		require.NoError(t, err)
		assert.Equal(t, []primitive.ObjectID{x.ID, y.ID, b.ID}, got.Ancestors)
		assert.Equal(t, hierarchy.PathOf(got.Ancestors), got.ParentPath)
		require.NotNil(t, got.ParentID)
		assert.Equal(t, b.ID, *got.ParentID)
	})

	t.Run("DeepDescendantKeepsRelativeSuffix", func(t *testing.T) {
		got, err := hierarchy.Relocate(moved, d)
		require.NoError(t, err)
		assert.Equal(t, []primitive.ObjectID{x.ID, y.ID, b.ID, c.ID}, got.Ancestors)
		assert.Equal(t, ","+x.ID.Hex()+","+y.ID.Hex()+","+b.ID.Hex()+","+c.ID.Hex()+",", got.ParentPath)
		assert.Equal(t, c.ID, *got.ParentID)
	})

	t.Run("MoveToRoot", func(t *testing.T) {
		rootMoved := b
		rp := hierarchy.Place(nil)
		rootMoved.ParentID, rootMoved.ParentPath, rootMoved.Ancestors = rp.ParentID, rp.ParentPath, rp.Ancestors

		got, err := hierarchy.Relocate(rootMoved, d)
		require.NoError(t, err)
		assert.Equal(t, []primitive.ObjectID{b.ID, c.ID}, got.Ancestors)
		assert.Equal(t, ","+b.ID.Hex()+","+c.ID.Hex()+",", got.ParentPath)
	})

	t.Run("NotADescendant", func(t *testing.T) {
		_, err := hierarchy.Relocate(moved, x)
		assert.ErrorIs(t, err, hierarchy.ErrNotDescendant)
	})
}
