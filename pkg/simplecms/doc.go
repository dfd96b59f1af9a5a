// Package simplecms provides a reusable library for a hierarchical,
// multilingual, versioned content tree with pluggable document repositories.
//
// Each content kind (page, block, media) is served by its own Service over a
// node repository and a version repository. Nodes hold one embedded record
// per language; every edit is a Version, and publishing copies a version onto
// its language record. Reads return merged views: a node flattened with one
// language record or with one version. Repository implementations for
// process memory and MongoDB live under repo/.
//
// Tree Strategy
//
// The tree is stored as a materialized path. Every node carries its parent
// id, its ordered ancestor ids and parentPath, the ancestors joined as
// ",A,B,". Subtree membership is a prefix match on parentPath, which lets
// trash and move touch a whole subtree without walking it. See the
// hierarchy subpackage.
//
// Primary Versions
//
// Within one (content, language) pair exactly one version is primary. The
// primary version is the one edited and read by default; publishing a
// non-primary version promotes it only when the pair has no primary draft.
package simplecms
