package vessel

import "context"

type Position struct {
	Lat          float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon          float64 `json:"lon" validate:"gte=-180,lte=180"`
	SpeedKnots   float64 `json:"speed" validate:"gte=0"`
	CourseDegree float64 `json:"course" validate:"gte=0,lte=360"`
}

type Client interface {
	FetchLivePosition(ctx context.Context, imo string) (Position, error)
}
