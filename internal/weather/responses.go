package weather

type Description struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type Main struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
	Pressure  float64 `json:"pressure"`
	Humidity  float64 `json:"humidity"`
}

type Coordinate struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

type Wind struct {
	Speed float64 `json:"speed"`
	Deg   float64 `json:"deg"`
}

type ApiResponse struct {
	Coord               Coordinate    `json:"coord"`
	WeatherDescriptions []Description `json:"weather"`
	Main                Main          `json:"main"`
	Wind                Wind          `json:"wind"`
	Dt                  int64         `json:"dt"`
	Timezone            int           `json:"timezone"`
	ID                  int           `json:"id"`
	Name                string        `json:"name"`
	Cod                 int           `json:"cod"`
}
