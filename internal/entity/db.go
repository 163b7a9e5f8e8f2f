package entity

import (
	"snapkit/internal/entity/common"
)

type Meta = common.Meta
type BaseParams = common.BaseParams
