package milvus

import (
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	fieldTileID      = "tile_id"
	fieldDescription = "description"
	fieldImage       = "image"
	fieldX           = "x"
	fieldY           = "y"
	fieldVector      = "vector"

	// DefaultVectorDimension text-embedding-3-small 的输出维度
	DefaultVectorDimension = 1536
)

// TilesCollection 类别集合的逻辑名（未加前缀）
func TilesCollection(category string) string {
	return tilesCollectionPrefix + category
}

const tilesCollectionPrefix = "tiles_"

// TilesSchema 瓦片集 Collection Schema
func TilesSchema(name string, dim int) *entity.Schema {
	if dim <= 0 {
		dim = DefaultVectorDimension
	}
	return &entity.Schema{
		CollectionName: name,
		Description:    "Tileset sprite descriptions for texture lookup",
		Fields: []*entity.Field{
			{
				Name:       fieldTileID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     fieldDescription,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "4096",
				},
			},
			{
				Name:     fieldImage,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "65535",
				},
			},
			{
				Name:     fieldX,
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     fieldY,
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     fieldVector,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(dim),
				},
			},
		},
	}
}
