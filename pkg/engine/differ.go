package engine

// Diff 对比上次提交的指纹状态与当前行，产出三类互不相交的变更集合：
// 新出现的主键 ⇒ 新增；内容哈希变化 ⇒ 更新；已消失的主键 ⇒ 删除。
// 哈希相同的行直接丢弃，永不重发 —— 稳态下的网络/索引开销只与实际变更量成正比。
// previous 为空表示首次全量（全部新增、无删除），current 为空表示全部删除。
func Diff(previous map[NormalizedKey]RowFingerprint, current []DocumentRow) *DiffSet {
	ds := &DiffSet{
		Creates: make(map[NormalizedKey]Row),
		Updates: make(map[NormalizedKey]Row),
	}

	seen := make(map[NormalizedKey]struct{}, len(current))
	for _, dr := range current {
		key := dr.Fingerprint.Key
		seen[key] = struct{}{}
		old, ok := previous[key]
		switch {
		case !ok:
			ds.Creates[key] = dr.Document
		case old.Hash != dr.Fingerprint.Hash:
			ds.Updates[key] = dr.Document
		}
	}

	for key := range previous {
		if _, ok := seen[key]; !ok {
			ds.Deletes = append(ds.Deletes, key)
		}
	}

	return ds
}

// NextFingerprints 由当前行构建下一个提交状态的指纹映射
func NextFingerprints(current []DocumentRow) map[NormalizedKey]RowFingerprint {
	next := make(map[NormalizedKey]RowFingerprint, len(current))
	for _, dr := range current {
		next[dr.Fingerprint.Key] = dr.Fingerprint
	}
	return next
}
