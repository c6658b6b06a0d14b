package health

// Metric identifies a tracked health measurement series.
type Metric string

const (
	MetricRestingHeartRate          Metric = "resting_heart_rate"           // bpm
	MetricHeartRateVariability      Metric = "heart_rate_variability"       // ms (SDNN)
	MetricRespiratoryRate           Metric = "respiratory_rate"             // breaths/min
	MetricBloodOxygen               Metric = "blood_oxygen"                 // percent SpO2
	MetricWristTemperatureDeviation Metric = "wrist_temperature_deviation"  // degrees C from personal norm
	MetricSleepDuration             Metric = "sleep_duration"               // minutes
	MetricDeepSleepDuration         Metric = "deep_sleep_duration"          // minutes
	MetricRemSleepDuration          Metric = "rem_sleep_duration"           // minutes
	MetricBloodGlucose              Metric = "blood_glucose"                // mg/dL
	MetricGlucoseVariability        Metric = "glucose_variability"          // coefficient of variation, percent
	MetricStepCount                 Metric = "step_count"                   // steps/day
	MetricActiveEnergy              Metric = "active_energy"                // kcal/day
)

// AllMetrics lists every metric the engine knows a policy for. Detection
// defaults to this set when the caller does not narrow it.
func AllMetrics() []Metric {
	return []Metric{
		MetricRestingHeartRate,
		MetricHeartRateVariability,
		MetricRespiratoryRate,
		MetricBloodOxygen,
		MetricWristTemperatureDeviation,
		MetricSleepDuration,
		MetricDeepSleepDuration,
		MetricRemSleepDuration,
		MetricBloodGlucose,
		MetricGlucoseVariability,
		MetricStepCount,
		MetricActiveEnergy,
	}
}

func (m Metric) String() string {
	return string(m)
}

// IsGlucoseFamily reports whether the metric comes from a CGM-style source.
func (m Metric) IsGlucoseFamily() bool {
	return m == MetricBloodGlucose || m == MetricGlucoseVariability
}

// IsSleepFamily reports whether the metric is a sleep-stage measurement.
func (m Metric) IsSleepFamily() bool {
	return m == MetricSleepDuration || m == MetricDeepSleepDuration || m == MetricRemSleepDuration
}
