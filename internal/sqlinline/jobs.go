package sqlinline

const QInsertJob = `--sql 3b1e8f0a-6c2d-4e57-9a41-0c7d5e2f8b63
insert into jobs (
    job_id, revision_of, targeted_fields, client_id, slot_client, state, state_transitions,
    user_input_redacted, user_input_hash, pii_flags, locale,
    template_id, template_version, quality_mode, resolution, total_duration_s,
    ir, shot_plan, shot_requests, assets, selected_seeds, error_details,
    created_at, updated_at
) values (
    $1, $2, $3, $4, $5, $6, $7,
    $8, $9, $10, $11,
    $12, $13, $14, $15, $16,
    $17, $18, $19, $20, $21, $22,
    $23, $24
);
`

const QSelectJob = `--sql 9e4c2a17-5b3f-4d08-8f6e-1a2b3c4d5e6f
select job_id, revision_of, targeted_fields, client_id, slot_client, state, state_transitions,
       user_input_redacted, user_input_hash, pii_flags, locale,
       template_id, template_version, quality_mode, resolution, total_duration_s,
       ir, shot_plan, shot_requests, assets, selected_seeds, error_details,
       created_at, updated_at
from jobs
where job_id = $1;
`

const QSelectJobForUpdate = `--sql 5d8a0b2c-7e14-4f39-a6c5-2b9e8d7f6a01
select job_id, revision_of, targeted_fields, client_id, slot_client, state, state_transitions,
       user_input_redacted, user_input_hash, pii_flags, locale,
       template_id, template_version, quality_mode, resolution, total_duration_s,
       ir, shot_plan, shot_requests, assets, selected_seeds, error_details,
       created_at, updated_at
from jobs
where job_id = $1
for update;
`

const QUpdateJob = `--sql c2f7e9a4-1b6d-4a83-9e05-7d4c3b2a1f90
update jobs
set targeted_fields   = $2,
    state             = $3,
    state_transitions = $4,
    template_id       = $5,
    template_version  = $6,
    quality_mode      = $7,
    resolution        = $8,
    total_duration_s  = $9,
    ir                = $10,
    shot_plan         = $11,
    shot_requests     = $12,
    assets            = $13,
    selected_seeds    = $14,
    error_details     = $15,
    updated_at        = $16,
    slot_client       = $17
where job_id = $1;
`

const QSelectJobsByState = `--sql 7a6b5c4d-3e2f-4a1b-8c9d-0e1f2a3b4c5d
select job_id, revision_of, targeted_fields, client_id, slot_client, state, state_transitions,
       user_input_redacted, user_input_hash, pii_flags, locale,
       template_id, template_version, quality_mode, resolution, total_duration_s,
       ir, shot_plan, shot_requests, assets, selected_seeds, error_details,
       created_at, updated_at
from jobs
where state = any($1::text[])
order by created_at asc;
`
