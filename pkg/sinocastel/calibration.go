package sinocastel

// OdometerCalibration reconciles the device mileage counter with the vehicle
// odometer. It is owned by the caller and passed to every decode.
type OdometerCalibration struct {
	OffsetKm float64 `json:"offset_km"`
}

// NewOdometerCalibration derives the offset from two readings taken at install
// time: the vehicle dashboard odometer and the mileage the device reported.
func NewOdometerCalibration(vehicleOdometerKm, deviceMileageKm float64) OdometerCalibration {
	return OdometerCalibration{OffsetKm: round2(vehicleOdometerKm - deviceMileageKm)}
}

// VehicleOdometerKm is offset + device mileage, rounded to 2 decimals.
func (c OdometerCalibration) VehicleOdometerKm(deviceMileageMeters uint32) float64 {
	return round2(c.OffsetKm + float64(deviceMileageMeters)/1000)
}
