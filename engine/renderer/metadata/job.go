package metadata

/** Definition for jobs. Returning an error routes the job to OnFailure. */
type JobStart func(params interface{}) error

/** Definition for completion of a job. */
type JobOnComplete func(params interface{})

/**
 * @brief Describes a job to be run.
 */
type JobTask struct {
	/** @brief Invoked when the job starts. Required. */
	OnStart JobStart
	/** @brief Invoked when the job successfully completes. Optional. */
	OnComplete JobOnComplete
	/** @brief Invoked when the job fails. Optional. */
	OnFailure JobOnComplete
	/** @brief Data to be passed to the entry point upon execution. */
	InputParams interface{}
}
