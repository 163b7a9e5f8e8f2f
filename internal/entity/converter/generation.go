package converter

import "snapkit/internal/entity"

// GenerationToItem 将生成记录转换为响应结构，publicURL 在图片行缺失时兜底。
func GenerationToItem(g *entity.DbGeneration, publicURL func(key string) string) entity.GenerationItem {
	if g == nil {
		return entity.GenerationItem{}
	}
	item := entity.GenerationItem{
		ID:               g.ID,
		CreatedAt:        g.CreatedAt,
		UserID:           g.UserID,
		Config:           g.Inputs,
		Result:           g.Results,
		CredentialSource: g.CredentialSource,
		PoolKeyID:        g.PoolKeyID,
		Attempts:         g.Attempts,
	}
	if g.Image != nil {
		item.Image = entity.GenerationImage{URL: g.Image.URL, PublicID: g.Image.PublicID}
		if item.Image.URL == "" && publicURL != nil {
			item.Image.URL = publicURL(g.Image.PublicID)
		}
	}
	return item
}

func GenerationsToItems(gens []entity.DbGeneration, publicURL func(key string) string) []entity.GenerationItem {
	items := make([]entity.GenerationItem, 0, len(gens))
	for i := range gens {
		items = append(items, GenerationToItem(&gens[i], publicURL))
	}
	return items
}
